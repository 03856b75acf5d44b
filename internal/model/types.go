package model

import (
	"strings"
	"time"

	"smart-ytdl/internal/format"
)

// DownloadTask is one fetch request in the queue. Title is display-only and
// editable; identity for duplicate detection is (SourceURL, Quality).
type DownloadTask struct {
	ID            string      `json:"id"`
	SourceURL     string      `json:"source_url"`
	Title         string      `json:"title"`
	Quality       string      `json:"quality"`
	Format        format.Spec `json:"format"`
	Status        Status      `json:"status"`
	Percent       int         `json:"percent"`
	StatusMessage string      `json:"status_message,omitempty"`
	Uploader      string      `json:"uploader,omitempty"`
	Thumbnail     []byte      `json:"-"`
	OutputPath    string      `json:"output_path,omitempty"`
	EnqueuedAt    time.Time   `json:"enqueued_at"`
	StartedAt     time.Time   `json:"started_at,omitzero"`
	FinishedAt    time.Time   `json:"finished_at,omitzero"`
}

// NewTask builds a pending task. The quality descriptor is parsed once here.
func NewTask(id, sourceURL, title, quality string) DownloadTask {
	return DownloadTask{
		ID:            id,
		SourceURL:     strings.TrimSpace(sourceURL),
		Title:         title,
		Quality:       quality,
		Format:        format.Select(quality),
		Status:        StatusPending,
		StatusMessage: "Waiting...",
		EnqueuedAt:    time.Now().UTC(),
	}
}

func (t DownloadTask) SameRequest(other DownloadTask) bool {
	return t.SourceURL == other.SourceURL && t.Quality == other.Quality
}

func (t DownloadTask) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
