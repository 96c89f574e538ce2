// Package pipeline defines scheduled stage chains and executes them.
package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/cs2predict/predict-api/internal/task"
)

// OverlapPolicy decides what happens when a trigger fires while the previous
// run of the same pipeline is still executing.
type OverlapPolicy string

const (
	// OverlapSkip drops the new fire.
	OverlapSkip OverlapPolicy = "skip"
	// OverlapQueue starts the new run once the previous one finishes.
	OverlapQueue OverlapPolicy = "queue"
	// OverlapAllow runs both concurrently.
	OverlapAllow OverlapPolicy = "allow"
)

// StageDefinition binds one external program to a position in a chain.
type StageDefinition struct {
	Name       string            `yaml:"name" validate:"required"`
	Executable string            `yaml:"executable" validate:"required"`
	Args       []string          `yaml:"args"`
	Dir        string            `yaml:"dir"`
	Env        map[string]string `yaml:"env"`
	Timeout    time.Duration     `yaml:"timeout" validate:"gte=0"`
}

// Command converts the stage into a task invocation.
func (s StageDefinition) Command() task.Command {
	return task.Command{
		Name:    s.Name,
		Path:    s.Executable,
		Args:    s.Args,
		Dir:     s.Dir,
		Env:     s.Env,
		Timeout: s.Timeout,
	}
}

// Definition is a named chain of stages fired by a cron trigger. Stage order
// is both execution order and dependency order.
type Definition struct {
	ID      string            `yaml:"name" validate:"required"`
	Cron    string            `yaml:"cron" validate:"required"`
	Overlap OverlapPolicy     `yaml:"overlap" validate:"omitempty,oneof=skip queue allow"`
	Stages  []StageDefinition `yaml:"stages" validate:"required,min=1,dive"`
}

// StageNames lists the stage names in order.
func (d Definition) StageNames() []string {
	names := make([]string, len(d.Stages))
	for i, s := range d.Stages {
		names[i] = s.Name
	}
	return names
}

// Clone returns a deep copy so callers cannot mutate a registered definition.
func (d Definition) Clone() Definition {
	out := d
	out.Stages = make([]StageDefinition, len(d.Stages))
	for i, s := range d.Stages {
		c := s
		c.Args = append([]string(nil), s.Args...)
		if s.Env != nil {
			c.Env = make(map[string]string, len(s.Env))
			for k, v := range s.Env {
				c.Env[k] = v
			}
		}
		out.Stages[i] = c
	}
	return out
}

// Validate checks one definition, including its cron expression.
func (d Definition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("pipeline %q: %w", d.ID, err)
	}
	if _, err := cron.ParseStandard(d.Cron); err != nil {
		return fmt.Errorf("pipeline %q: invalid cron %q: %w", d.ID, d.Cron, err)
	}
	seen := make(map[string]bool, len(d.Stages))
	for _, s := range d.Stages {
		if seen[s.Name] {
			return fmt.Errorf("pipeline %q: duplicate stage %q", d.ID, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

var validate = validator.New()

type triggerTable struct {
	Pipelines []Definition `yaml:"pipelines" validate:"required,min=1"`
}

// LoadFile reads the trigger table at path. Relative executables and
// working directories resolve against the file's directory; stages without
// a working directory run there.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trigger table: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Dir(abs))
}

// Parse decodes and validates a trigger table.
func Parse(data []byte, baseDir string) ([]Definition, error) {
	var table triggerTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse trigger table: %w", err)
	}
	if err := validate.Struct(table); err != nil {
		return nil, fmt.Errorf("trigger table: %w", err)
	}

	seen := make(map[string]bool, len(table.Pipelines))
	for i := range table.Pipelines {
		def := &table.Pipelines[i]
		if def.Overlap == "" {
			def.Overlap = OverlapSkip
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("duplicate pipeline %q", def.ID)
		}
		seen[def.ID] = true

		for j := range def.Stages {
			resolvePaths(&def.Stages[j], baseDir)
		}
	}
	return table.Pipelines, nil
}

func resolvePaths(s *StageDefinition, baseDir string) {
	// Bare names such as "python" are looked up on PATH.
	if strings.ContainsRune(s.Executable, filepath.Separator) && !filepath.IsAbs(s.Executable) {
		s.Executable = filepath.Join(baseDir, s.Executable)
	}
	switch {
	case s.Dir == "":
		s.Dir = baseDir
	case !filepath.IsAbs(s.Dir):
		s.Dir = filepath.Join(baseDir, s.Dir)
	}
}
