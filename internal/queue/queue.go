package queue

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"smart-ytdl/internal/model"
)

type DuplicateTaskError struct {
	SourceURL  string
	Quality    string
	ExistingID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task already queued: %s [%s] (task_id=%s)", e.SourceURL, e.Quality, e.ExistingID)
}

type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("task index %d out of range (0..%d)", e.Index, e.Len-1)
}

type TaskNotFoundError struct {
	ID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.ID)
}

// Queue is the ordered task list. Order is insertion order and drives FIFO
// selection. Readers get copies; only the scheduler calls the Mark methods.
type Queue struct {
	mu    sync.RWMutex
	tasks []model.DownloadTask
}

func New() *Queue {
	return &Queue{}
}

func NewTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "task-" + uuid.NewString()
	}
	return "task-" + id.String()
}

// Add builds a pending task and enqueues it.
func (q *Queue) Add(sourceURL, title, quality string) (model.DownloadTask, error) {
	task := model.NewTask(NewTaskID(), sourceURL, title, quality)
	if err := q.Enqueue(task); err != nil {
		return model.DownloadTask{}, err
	}
	return task, nil
}

func (q *Queue) Enqueue(task model.DownloadTask) error {
	if strings.TrimSpace(task.SourceURL) == "" {
		return fmt.Errorf("source URL is required")
	}
	if task.ID == "" {
		task.ID = NewTaskID()
	}
	if task.Status == "" {
		if err := model.TransitionTask(&task, model.StatusPending, "Waiting..."); err != nil {
			return err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, existing := range q.tasks {
		if existing.SameRequest(task) && !existing.Status.IsTerminal() {
			return &DuplicateTaskError{SourceURL: task.SourceURL, Quality: task.Quality, ExistingID: existing.ID}
		}
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// Remove deletes the task at index. Removing the task that is downloading is
// allowed; its run keeps going and later updates for it are dropped.
func (q *Queue) Remove(index int) (model.DownloadTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.tasks) {
		return model.DownloadTask{}, &IndexOutOfRangeError{Index: index, Len: len(q.tasks)}
	}
	removed := q.tasks[index]
	q.tasks = append(q.tasks[:index], q.tasks[index+1:]...)
	return removed, nil
}

func (q *Queue) FindNextPending() (model.DownloadTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.tasks {
		if t.Status == model.StatusPending {
			return t, true
		}
	}
	return model.DownloadTask{}, false
}

func (q *Queue) Tasks() []model.DownloadTask {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]model.DownloadTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

func (q *Queue) Get(id string) (model.DownloadTask, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i := q.indexOf(id); i >= 0 {
		return q.tasks[i], true
	}
	return model.DownloadTask{}, false
}

func (q *Queue) Rename(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	return q.update(id, func(t *model.DownloadTask) error {
		t.Title = title
		return nil
	})
}

func (q *Queue) MarkDownloading(id string) (model.DownloadTask, error) {
	var out model.DownloadTask
	err := q.update(id, func(t *model.DownloadTask) error {
		if err := model.TransitionTask(t, model.StatusDownloading, "Starting..."); err != nil {
			return err
		}
		t.Percent = 0
		t.StartedAt = time.Now().UTC()
		out = *t
		return nil
	})
	return out, err
}

func (q *Queue) UpdateProgress(id string, percent int, message string) (model.DownloadTask, error) {
	var out model.DownloadTask
	err := q.update(id, func(t *model.DownloadTask) error {
		if err := model.TransitionTask(t, model.StatusDownloading, message); err != nil {
			return err
		}
		t.Percent = percent
		out = *t
		return nil
	})
	return out, err
}

func (q *Queue) MarkCompleted(id, outputPath string) (model.DownloadTask, error) {
	var out model.DownloadTask
	err := q.update(id, func(t *model.DownloadTask) error {
		if err := model.TransitionTask(t, model.StatusCompleted, "Completed"); err != nil {
			return err
		}
		t.Percent = 100
		t.OutputPath = outputPath
		t.FinishedAt = time.Now().UTC()
		out = *t
		return nil
	})
	return out, err
}

func (q *Queue) MarkFailed(id, message string) (model.DownloadTask, error) {
	var out model.DownloadTask
	err := q.update(id, func(t *model.DownloadTask) error {
		if err := model.TransitionTask(t, model.StatusFailed, message); err != nil {
			return err
		}
		t.FinishedAt = time.Now().UTC()
		out = *t
		return nil
	})
	return out, err
}

func (q *Queue) update(id string, fn func(t *model.DownloadTask) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id)
	if i < 0 {
		return &TaskNotFoundError{ID: id}
	}
	return fn(&q.tasks[i])
}

func (q *Queue) indexOf(id string) int {
	for i := range q.tasks {
		if q.tasks[i].ID == id {
			return i
		}
	}
	return -1
}
