package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"smart-ytdl/internal/model"
	"smart-ytdl/internal/queue"
	"smart-ytdl/internal/runstore"
)

type Result int

const (
	Started Result = iota
	AlreadyBusy
	NothingPending
	QueueEmpty
	BatchFinished
)

func (r Result) String() string {
	switch r {
	case Started:
		return "started"
	case AlreadyBusy:
		return "already_busy"
	case NothingPending:
		return "nothing_pending"
	case QueueEmpty:
		return "queue_empty"
	case BatchFinished:
		return "batch_finished"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

var (
	ErrAlreadyBusy    = errors.New("a download is already in progress")
	ErrNothingPending = errors.New("no pending tasks found in the queue")
	ErrQueueEmpty     = errors.New("the queue is empty")
	ErrStopped        = errors.New("scheduler is not running")
)

// Err maps results a user should be told about to an error. Started and
// BatchFinished map to nil.
func (r Result) Err() error {
	switch r {
	case AlreadyBusy:
		return ErrAlreadyBusy
	case NothingPending:
		return ErrNothingPending
	case QueueEmpty:
		return ErrQueueEmpty
	default:
		return nil
	}
}

type ExecutorError struct {
	TaskID  string
	Message string
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

type EventType int

const (
	TaskStarted EventType = iota
	TaskProgress
	TaskCompleted
	TaskFailed
	BatchDone
)

type Event struct {
	Type EventType
	Task model.DownloadTask
	Err  *ExecutorError
}

type Options struct {
	Queue    *queue.Queue
	Executor Executor
	Dest     string
	// OnEvent runs on the coordinator goroutine. It must not call Run or
	// Cancel synchronously.
	OnEvent func(Event)
	Mkdir   func(path string) error
}

type runRequest struct {
	userInitiated bool
	reply         chan Result
}

type execMsg struct {
	taskID string
	ev     ExecEvent
	closed bool
}

type cancelRequest struct {
	taskID string
	reply  chan bool
}

// Scheduler runs at most one task at a time and chains to the next pending
// task when one finishes. All state changes happen on the goroutine running
// Serve.
type Scheduler struct {
	q       *queue.Queue
	exec    Executor
	dest    string
	mkdir   func(string) error
	onEvent func(Event)

	requests chan runRequest
	events   chan execMsg
	cancels  chan cancelRequest
	done     chan struct{}
	serving  atomic.Bool

	watchMu  sync.Mutex
	watchers map[string]map[int]func(Event)
	watchSeq int

	activeView atomic.Value

	// coordinator-owned
	active    string
	activeRun Run
	batchOpen bool
}

func New(opts Options) (*Scheduler, error) {
	if opts.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	dest := strings.TrimSpace(opts.Dest)
	if dest == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	mkdir := opts.Mkdir
	if mkdir == nil {
		mkdir = runstore.Mkdir
	}
	s := &Scheduler{
		q:        opts.Queue,
		exec:     opts.Executor,
		dest:     dest,
		mkdir:    mkdir,
		onEvent:  opts.OnEvent,
		requests: make(chan runRequest),
		events:   make(chan execMsg),
		cancels:  make(chan cancelRequest),
		done:     make(chan struct{}),
		watchers: map[string]map[int]func(Event){},
	}
	s.activeView.Store("")
	return s, nil
}

// Serve runs the coordinator until ctx is done. The active run, if any, is
// cancelled on exit.
func (s *Scheduler) Serve(ctx context.Context) error {
	if !s.serving.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler is already serving")
	}
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			if s.activeRun != nil {
				s.activeRun.Cancel()
			}
			return ctx.Err()
		case req := <-s.requests:
			req.reply <- s.run(ctx, req.userInitiated)
		case msg := <-s.events:
			s.handle(ctx, msg)
		case req := <-s.cancels:
			req.reply <- s.cancel(req.taskID)
		}
	}
}

func (s *Scheduler) Run(ctx context.Context, userInitiated bool) (Result, error) {
	req := runRequest{userInitiated: userInitiated, reply: make(chan Result, 1)}
	select {
	case s.requests <- req:
	case <-s.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r, nil
	case <-s.done:
		return 0, ErrStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Cancel stops the active task, if any. The task ends as failed and the
// chain moves on.
func (s *Scheduler) Cancel() bool {
	return s.CancelTask("")
}

// CancelTask stops the active task only when it is taskID. An empty id
// matches whatever is active.
func (s *Scheduler) CancelTask(taskID string) bool {
	req := cancelRequest{taskID: taskID, reply: make(chan bool, 1)}
	select {
	case s.cancels <- req:
	case <-s.done:
		return false
	}
	select {
	case ok := <-req.reply:
		return ok
	case <-s.done:
		return false
	}
}

func (s *Scheduler) Active() (string, bool) {
	id, _ := s.activeView.Load().(string)
	return id, id != ""
}

// Watch registers fn for events about one task. The returned func removes it.
func (s *Scheduler) Watch(taskID string, fn func(Event)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.watchSeq++
	key := s.watchSeq
	if s.watchers[taskID] == nil {
		s.watchers[taskID] = map[int]func(Event){}
	}
	s.watchers[taskID][key] = fn
	return func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		delete(s.watchers[taskID], key)
		if len(s.watchers[taskID]) == 0 {
			delete(s.watchers, taskID)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, userInitiated bool) Result {
	if s.active != "" {
		return AlreadyBusy
	}
	if s.q.Len() == 0 {
		s.batchOpen = false
		return QueueEmpty
	}
	for {
		task, ok := s.q.FindNextPending()
		if !ok {
			if userInitiated || !s.batchOpen {
				return NothingPending
			}
			s.batchOpen = false
			s.emit(Event{Type: BatchDone})
			return BatchFinished
		}
		if s.start(ctx, task) {
			return Started
		}
		// The task failed before its executor ran; that counts as a
		// terminal event, so keep going as an automatic continuation.
		userInitiated = false
	}
}

func (s *Scheduler) start(ctx context.Context, task model.DownloadTask) bool {
	t, err := s.q.MarkDownloading(task.ID)
	if err != nil {
		// Removed between selection and start.
		return false
	}
	s.batchOpen = true
	s.setActive(t.ID)
	s.emit(Event{Type: TaskStarted, Task: t})

	if err := s.mkdir(s.dest); err != nil {
		s.finish(t.ID, Failed(err.Error()))
		return false
	}
	run, err := s.exec.Start(ctx, Job{
		TaskID:    t.ID,
		URL:       t.SourceURL,
		Format:    t.Format,
		Dest:      s.dest,
		Title:     t.Title,
		Uploader:  t.Uploader,
		Thumbnail: t.Thumbnail,
	})
	if err != nil {
		s.finish(t.ID, Failed(err.Error()))
		return false
	}
	s.activeRun = run
	go s.forward(t.ID, run)
	return true
}

func (s *Scheduler) forward(taskID string, run Run) {
	for ev := range run.Events() {
		select {
		case s.events <- execMsg{taskID: taskID, ev: ev}:
		case <-s.done:
			return
		}
	}
	select {
	case s.events <- execMsg{taskID: taskID, closed: true}:
	case <-s.done:
	}
}

func (s *Scheduler) handle(ctx context.Context, msg execMsg) {
	if msg.taskID != s.active {
		return
	}
	if msg.closed {
		s.finish(msg.taskID, Failed("download stopped without a result"))
		s.run(ctx, false)
		return
	}
	switch msg.ev.Kind {
	case ExecProgress:
		t, err := s.q.UpdateProgress(msg.taskID, msg.ev.Percent, msg.ev.Message)
		if err != nil {
			return
		}
		s.emit(Event{Type: TaskProgress, Task: t})
	case ExecCompleted, ExecError:
		s.finish(msg.taskID, msg.ev)
		s.run(ctx, false)
	}
}

// finish commits a terminal event and clears the active slot.
func (s *Scheduler) finish(taskID string, ev ExecEvent) {
	s.active = ""
	s.activeRun = nil
	s.setActive("")

	if ev.Kind == ExecCompleted {
		t, err := s.q.MarkCompleted(taskID, ev.OutputPath)
		if err != nil {
			t = model.DownloadTask{ID: taskID, Status: model.StatusCompleted, Percent: 100, OutputPath: ev.OutputPath}
		}
		s.emit(Event{Type: TaskCompleted, Task: t})
		return
	}

	message := strings.TrimSpace(ev.Message)
	if message == "" {
		message = "unknown error"
	}
	t, err := s.q.MarkFailed(taskID, message)
	if err != nil {
		t = model.DownloadTask{ID: taskID, Status: model.StatusFailed, StatusMessage: message}
	}
	s.emit(Event{Type: TaskFailed, Task: t, Err: &ExecutorError{TaskID: taskID, Message: message}})
}

func (s *Scheduler) cancel(taskID string) bool {
	if s.activeRun == nil {
		return false
	}
	if taskID != "" && taskID != s.active {
		return false
	}
	s.activeRun.Cancel()
	return true
}

func (s *Scheduler) setActive(id string) {
	s.active = id
	s.activeView.Store(id)
}

func (s *Scheduler) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
	if ev.Task.ID == "" {
		return
	}
	s.watchMu.Lock()
	fns := make([]func(Event), 0, len(s.watchers[ev.Task.ID]))
	for _, fn := range s.watchers[ev.Task.ID] {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
