package task

import (
	"errors"
	"fmt"
)

// Kind classifies why a stage failed.
type Kind string

const (
	KindLaunchFailure Kind = "launch_failure"
	KindNonZeroExit   Kind = "non_zero_exit"
	KindTimeout       Kind = "timeout"
	KindCanceled      Kind = "canceled"
)

var (
	ErrLaunchFailure = errors.New("process could not be started")
	ErrNonZeroExit   = errors.New("process exited with non-zero code")
	ErrTimeout       = errors.New("process timed out")
	ErrCanceled      = errors.New("process canceled")
)

// Error is returned in Result.Err for every failed invocation. It matches
// the sentinel of its Kind with errors.Is.
type Error struct {
	Stage    string
	Kind     Kind
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindLaunchFailure:
		return fmt.Sprintf("%s: failed to start: %v", e.Stage, e.Err)
	case KindNonZeroExit:
		return fmt.Sprintf("%s: exited with non-zero code %d", e.Stage, e.ExitCode)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

func (k Kind) sentinel() error {
	switch k {
	case KindLaunchFailure:
		return ErrLaunchFailure
	case KindNonZeroExit:
		return ErrNonZeroExit
	case KindTimeout:
		return ErrTimeout
	case KindCanceled:
		return ErrCanceled
	}
	return nil
}

// KindOf extracts the failure kind from err, or "" when err is not a task error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
