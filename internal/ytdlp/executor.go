package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"smart-ytdl/internal/format"
	"smart-ytdl/internal/progress"
	"smart-ytdl/internal/scheduler"
)

const (
	filePrefix = "smart-ytdl:file "

	CancelledMessage = "Download cancelled by user"
)

type DownloadOptions struct {
	Options
	OutputTemplate    string
	Fragments         int
	DownloadLimitMBps float64
	AudioFormat       string
	AudioQuality      string
	MergeFormat       string
	ProgressInterval  time.Duration
	// LogDir receives one raw output log per task when set.
	LogDir string
	// PostProcess runs after a successful download with the final file path.
	// Its error is logged but does not fail the task.
	PostProcess func(ctx context.Context, job scheduler.Job, path string) error
}

// Executor runs one yt-dlp process per job.
type Executor struct {
	opts    DownloadOptions
	started atomic.Int64
}

func NewExecutor(opts DownloadOptions) *Executor {
	if strings.TrimSpace(opts.OutputTemplate) == "" {
		opts.OutputTemplate = "%(title)s.%(ext)s"
	}
	if opts.Fragments <= 0 {
		opts.Fragments = 4
	}
	if strings.TrimSpace(opts.AudioFormat) == "" {
		opts.AudioFormat = "mp3"
	}
	if strings.TrimSpace(opts.AudioQuality) == "" {
		opts.AudioQuality = "192K"
	}
	if strings.TrimSpace(opts.MergeFormat) == "" {
		opts.MergeFormat = "mp4"
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = 250 * time.Millisecond
	}
	return &Executor{opts: opts}
}

type run struct {
	events    chan scheduler.ExecEvent
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func (r *run) Events() <-chan scheduler.ExecEvent { return r.events }

func (r *run) Cancel() {
	r.cancelled.Store(true)
	r.cancel()
}

// sendProgress drops the update when the buffer is nearly full so the
// terminal event always has room.
func (r *run) sendProgress(ev scheduler.ExecEvent) {
	if len(r.events) >= cap(r.events)-1 {
		return
	}
	r.events <- ev
}

func (e *Executor) Start(ctx context.Context, job scheduler.Job) (scheduler.Run, error) {
	binary, err := e.opts.lookBinary()
	if err != nil {
		return nil, err
	}
	n := int(e.started.Add(1) - 1)
	args, err := e.downloadArgs(job, e.opts.proxyFor(n))
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithCancel(ctx)
	r := &run{events: make(chan scheduler.ExecEvent, 32), cancel: cancel}
	go e.execute(rctx, r, binary, args, job)
	return r, nil
}

func (e *Executor) downloadArgs(job scheduler.Job, proxy string) ([]string, error) {
	if strings.TrimSpace(job.URL) == "" {
		return nil, fmt.Errorf("video URL is required")
	}
	if strings.TrimSpace(job.Dest) == "" {
		return nil, fmt.Errorf("output directory is required")
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--progress",
		"--progress-template", "download:" + progress.LinePrefix + "%(progress)j",
		"--print", "after_move:" + filePrefix + "%(filepath)s",
		"-N", strconv.Itoa(e.opts.Fragments),
		"-P", job.Dest,
		"-o", e.opts.OutputTemplate,
		"-f", job.Format.Selector(),
	}
	switch job.Format.Kind {
	case format.KindAudio:
		args = append(args,
			"-x",
			"--audio-format", e.opts.AudioFormat,
			"--audio-quality", e.opts.AudioQuality,
		)
	case format.KindVideoWithAudio, format.KindBest:
		args = append(args, "--merge-output-format", e.opts.MergeFormat)
	}
	if e.opts.DownloadLimitMBps > 0 {
		args = append(args, "--limit-rate", formatRateLimitMBps(e.opts.DownloadLimitMBps))
	}
	common, err := e.opts.commonArgs(proxy)
	if err != nil {
		return nil, err
	}
	args = append(args, common...)
	return append(args, "--", job.URL), nil
}

func (e *Executor) execute(ctx context.Context, r *run, binary string, args []string, job scheduler.Job) {
	defer close(r.events)
	defer r.cancel()

	logW, closeLog := e.openLog(job.TaskID)
	defer closeLog()

	var (
		mu         sync.Mutex
		agg        progress.Aggregator
		outputPath string
		throttle   = rate.Sometimes{Interval: e.opts.ProgressInterval}
	)
	onLine := func(stream OutputStream, line string) {
		if p, ok := strings.CutPrefix(strings.TrimSpace(line), filePrefix); ok {
			mu.Lock()
			outputPath = strings.TrimSpace(p)
			mu.Unlock()
			return
		}
		if r.cancelled.Load() {
			return
		}
		sig, ok := progress.ParseLine(line)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		u, changed := agg.Observe(sig)
		if !changed {
			return
		}
		if sig.Status == progress.StatusFinished {
			r.sendProgress(scheduler.Progress(u.Percent, u.Status))
			return
		}
		throttle.Do(func() {
			r.sendProgress(scheduler.Progress(u.Percent, u.Status))
		})
	}

	out, err := runCommand(ctx, binary, args, logW, onLine)
	if r.cancelled.Load() {
		r.events <- scheduler.Failed(CancelledMessage)
		return
	}
	if err != nil {
		msg := errorMessage(out.stderr)
		if msg == "" {
			msg = err.Error()
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			msg = CancelledMessage
		}
		r.events <- scheduler.Failed(msg)
		return
	}

	mu.Lock()
	path := outputPath
	mu.Unlock()
	if path != "" && e.opts.PostProcess != nil {
		r.sendProgress(scheduler.Progress(100, progress.ProcessingMessage))
		if err := e.opts.PostProcess(ctx, job, path); err != nil && logW != nil {
			_, _ = fmt.Fprintf(logW, "post-process %s: %v\n", path, err)
		}
	}
	r.events <- scheduler.Completed(path)
}

func (e *Executor) openLog(taskID string) (io.Writer, func()) {
	dir := strings.TrimSpace(e.opts.LogDir)
	if dir == "" {
		return nil, func() {}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, func() {}
	}
	f, err := os.Create(filepath.Join(dir, taskID+".log"))
	if err != nil {
		return nil, func() {}
	}
	return f, func() { _ = f.Close() }
}
