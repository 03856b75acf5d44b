package scheduler

import (
	"context"

	"smart-ytdl/internal/format"
)

// Job is everything an executor needs to fetch one task.
type Job struct {
	TaskID    string
	URL       string
	Format    format.Spec
	Dest      string
	Title     string
	Uploader  string
	Thumbnail []byte
}

type ExecEventKind int

const (
	ExecProgress ExecEventKind = iota
	ExecCompleted
	ExecError
)

type ExecEvent struct {
	Kind       ExecEventKind
	Percent    int
	Message    string
	OutputPath string
}

func Progress(percent int, message string) ExecEvent {
	return ExecEvent{Kind: ExecProgress, Percent: percent, Message: message}
}

func Completed(outputPath string) ExecEvent {
	return ExecEvent{Kind: ExecCompleted, Percent: 100, OutputPath: outputPath}
}

func Failed(message string) ExecEvent {
	return ExecEvent{Kind: ExecError, Message: message}
}

// Run is one in-flight executor job. Events is closed after the terminal
// event. Cancel asks the job to stop at its next checkpoint; a cancelled job
// still ends with an ExecError event.
type Run interface {
	Events() <-chan ExecEvent
	Cancel()
}

type Executor interface {
	Start(ctx context.Context, job Job) (Run, error)
}
