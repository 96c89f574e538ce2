package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"

	"github.com/cs2predict/predict-api/internal/config"
	"github.com/cs2predict/predict-api/internal/observability"
	"github.com/cs2predict/predict-api/internal/pipeline"
	"github.com/cs2predict/predict-api/internal/scheduler"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "run one pipeline in the foreground and exit",
		ArgsUsage: "<pipeline>",
		Action:    runPipeline,
	}
}

func runPipeline(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return cli.Exit("usage: predictd run <pipeline>", 2)
	}

	cfg, err := config.LoadScheduler()
	if err != nil {
		return err
	}
	if f := cmd.String("pipelines"); f != "" {
		cfg.PipelinesFile = f
	}
	logger, err := observability.NewLogger(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched, err := newScheduler(cfg.PipelinesFile, cfg.StageTimeout, logger, scheduler.WithLocation(cfg.TimeZone))
	if err != nil {
		return err
	}
	res, err := sched.RunNow(ctx, id)
	if err != nil {
		return err
	}

	for i, r := range res.CompletedStages {
		outcome := "ok"
		if r.Err != nil {
			outcome = r.Err.Error()
		}
		fmt.Printf("%d. %-24s %-10s %s\n", i+1, r.StageName, r.Duration.Round(time.Millisecond), outcome)
	}
	if !res.Succeeded() {
		return cli.Exit(fmt.Sprintf("pipeline %s failed", id), 1)
	}
	return nil
}

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Usage:  "check the trigger table and print upcoming fire times",
		Action: validate,
	}
}

func validate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.LoadScheduler()
	if err != nil {
		return err
	}
	if f := cmd.String("pipelines"); f != "" {
		cfg.PipelinesFile = f
	}

	defs, err := pipeline.LoadFile(cfg.PipelinesFile)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PIPELINE\tCRON\tOVERLAP\tSTAGES\tNEXT RUNS")
	now := time.Now().In(cfg.TimeZone)
	for _, def := range defs {
		next := nextRuns(def.Cron, now, 3)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			def.ID, def.Cron, def.Overlap, strings.Join(def.StageNames(), " > "), strings.Join(next, ", "))
	}
	return w.Flush()
}

// nextRuns lists the next n fire times after from. The expression has
// already been validated.
func nextRuns(spec string, from time.Time, n int) []string {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil
	}
	out := make([]string, 0, n)
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t.Format("2006-01-02 15:04 MST"))
	}
	return out
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "print the last published status of every pipeline from Redis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis to read from",
				Sources: cli.EnvVars("REDIS_URL"),
			},
		},
		Action: status,
	}
}

func status(ctx context.Context, cmd *cli.Command) error {
	url := cmd.String("redis-url")
	if url == "" {
		return cli.Exit("REDIS_URL is not set", 2)
	}
	rdb, err := openRedis(ctx, url)
	if err != nil {
		return err
	}
	defer rdb.Close()

	statuses, err := scheduler.ReadStatuses(ctx, rdb)
	if err != nil {
		return err
	}
	// Map keys are encoded in sorted order.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(statuses)
}
