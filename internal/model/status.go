package model

import "fmt"

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var allowedTransitions = map[Status]map[Status]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusDownloading: true,
	},
	StatusDownloading: {
		StatusDownloading: true, // progress updates
		StatusCompleted:   true,
		StatusFailed:      true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

func (s Status) String() string {
	return string(s)
}

// Label is the human form shown in task lists.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusDownloading:
		return "Downloading"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionTask(task *DownloadTask, to Status, message string) error {
	from := task.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid task status transition: %q -> %q (task_id=%s url=%s)", from, to, task.ID, task.SourceURL)
	}
	task.Status = to
	task.StatusMessage = message
	return nil
}
