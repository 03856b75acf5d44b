package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"smart-ytdl/internal/config"
	"smart-ytdl/internal/format"
	"smart-ytdl/internal/metadata"
	"smart-ytdl/internal/model"
	"smart-ytdl/internal/queue"
	"smart-ytdl/internal/runstore"
	"smart-ytdl/internal/scheduler"
)

const defaultCLIQuality = "1080"

type getTaskReport struct {
	TaskID     string `json:"task_id,omitempty"`
	SourceURL  string `json:"source_url"`
	Title      string `json:"title,omitempty"`
	Quality    string `json:"quality"`
	Status     string `json:"status"`
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

type getResult struct {
	DownloadDir string          `json:"download_dir"`
	Completed   int             `json:"completed"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	Tasks       []getTaskReport `json:"tasks"`
}

func runGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	quality := fs.String("quality", defaultCLIQuality, "max video height, e.g. 1080 or 720 (best = no cap)")
	fs.StringVar(quality, "q", defaultCLIQuality, "shorthand for --quality")
	audio := fs.Bool("audio", false, "download audio only (MP3)")
	fs.BoolVar(audio, "a", false, "shorthand for --audio")
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	outputDir := fs.String("output-dir", "", "download directory override")
	logDir := fs.String("log-dir", "", "write raw yt-dlp output per task into this directory")
	lookups := fs.Int("lookups", 4, "parallel metadata lookups")
	progress := fs.Bool("progress", true, "show live progress line")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	urls := fs.Args()
	if len(urls) == 0 {
		u, err := promptRequired("YouTube URL")
		if err != nil {
			return err
		}
		urls = []string{u}
	}
	for i, raw := range urls {
		u, err := metadata.ValidateSourceURL(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", strings.TrimSpace(raw), err)
		}
		urls[i] = u
	}
	descriptor, err := cliQualityDescriptor(*quality, *audio)
	if err != nil {
		return err
	}

	settings, err := loadSettings(*configPath, *outputDir)
	if err != nil {
		return err
	}
	lock, err := runstore.AcquireDirLock(settings.DownloadDir)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng := newEngine(settings, *logDir)
	out := newBatchPrinter(*jsonOut, *progress && !*jsonOut && stdoutIsTTY())
	if !*jsonOut {
		fmt.Printf("get: looking up %d URL(s)...\n", len(urls))
	}
	result := getResult{DownloadDir: settings.DownloadDir}
	records, lookupErrs := lookupAll(ctx, eng, urls, *lookups)
	for i, u := range urls {
		if lookupErrs[i] != nil {
			result.Failed++
			result.Tasks = append(result.Tasks, getTaskReport{SourceURL: u, Quality: descriptor, Status: string(model.StatusFailed), Error: lookupErrs[i].Error()})
			out.println("lookup failed: %s: %v", u, lookupErrs[i])
			continue
		}
		task, err := eng.enqueue(records[i], descriptor)
		var dup *queue.DuplicateTaskError
		if errors.As(err, &dup) {
			result.Skipped++
			out.println("skipped duplicate: %s [%s]", u, descriptor)
			continue
		}
		if err != nil {
			return err
		}
		out.println("queued: %s [%s]", task.Title, task.Quality)
	}

	if eng.queue.Len() > 0 {
		out.total = eng.queue.Len()
		if err := driveBatch(ctx, eng, out.handle); err != nil {
			return err
		}
	}

	for _, t := range eng.queue.Tasks() {
		report := getTaskReport{
			TaskID:     t.ID,
			SourceURL:  t.SourceURL,
			Title:      t.Title,
			Quality:    t.Quality,
			Status:     string(t.Status),
			OutputPath: t.OutputPath,
		}
		switch t.Status {
		case model.StatusCompleted:
			result.Completed++
		case model.StatusFailed:
			result.Failed++
			report.Error = t.StatusMessage
		}
		result.Tasks = append(result.Tasks, report)
	}

	if *jsonOut {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		fmt.Printf("get: completed=%d failed=%d skipped=%d dir=%s\n", result.Completed, result.Failed, result.Skipped, result.DownloadDir)
	}
	if result.Failed > 0 {
		return fmt.Errorf("%d download(s) failed", result.Failed)
	}
	return nil
}

// cliQualityDescriptor maps the -q/-a flags onto a quality menu entry.
func cliQualityDescriptor(raw string, audio bool) (string, error) {
	if audio {
		return format.Audio().Descriptor(), nil
	}
	v := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(raw), "p"))
	if v == "" || v == "best" {
		return format.Best().Descriptor(), nil
	}
	h, err := strconv.Atoi(v)
	if err != nil || h <= 0 {
		return "", fmt.Errorf("--quality must be a positive height like 1080 or best, got %q", raw)
	}
	return format.VideoWithAudio(h).Descriptor(), nil
}

func lookupAll(ctx context.Context, eng *engine, urls []string, limit int) ([]metadata.Record, []error) {
	records := make([]metadata.Record, len(urls))
	errs := make([]error, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, limit))
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			rec, _, err := eng.cache.Resolve(gctx, u, eng.provider, nil)
			records[i] = rec
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return records, errs
}

// driveBatch serves the scheduler, kicks off the chain and waits for the
// batch to drain. Interrupting ctx cancels the active download.
func driveBatch(ctx context.Context, eng *engine, onEvent func(scheduler.Event)) error {
	done := make(chan struct{})
	var once sync.Once
	sched, err := eng.newScheduler(func(ev scheduler.Event) {
		onEvent(ev)
		if ev.Type == scheduler.BatchDone {
			once.Do(func() { close(done) })
		}
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	g.Go(func() error {
		if err := sched.Serve(serveCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer stopServe()
		res, err := sched.Run(gctx, true)
		if err != nil {
			return err
		}
		if res != scheduler.Started {
			return res.Err()
		}
		select {
		case <-done:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("interrupted")
		}
		return err
	}
	return nil
}

// batchPrinter renders scheduler events for the get command. It runs on the
// scheduler coordinator, so it only writes to stdout.
type batchPrinter struct {
	quiet    bool
	live     bool
	total    int
	started  int
	liveOpen bool
}

func newBatchPrinter(jsonOut, live bool) *batchPrinter {
	return &batchPrinter{quiet: jsonOut, live: live}
}

func (p *batchPrinter) println(msg string, args ...any) {
	if p.quiet {
		return
	}
	p.clearLive()
	fmt.Printf(msg+"\n", args...)
}

func (p *batchPrinter) clearLive() {
	if p.liveOpen {
		fmt.Print("\r\033[2K")
		p.liveOpen = false
	}
}

func (p *batchPrinter) handle(ev scheduler.Event) {
	if p.quiet {
		return
	}
	t := ev.Task
	switch ev.Type {
	case scheduler.TaskStarted:
		p.started++
		p.println("[%d/%d] downloading %s [%s]", p.started, p.total, t.Title, t.Quality)
	case scheduler.TaskProgress:
		if !p.live {
			return
		}
		fmt.Printf("\r\033[2K  %s %3d%% | %s", progressBar(t.Percent, 30), t.Percent, t.StatusMessage)
		p.liveOpen = true
	case scheduler.TaskCompleted:
		p.println("  saved: %s", defaultIfEmpty(t.OutputPath, "(path unknown)"))
	case scheduler.TaskFailed:
		msg := t.StatusMessage
		if ev.Err != nil {
			msg = ev.Err.Message
		}
		p.println("  failed: %s", msg)
	case scheduler.BatchDone:
		p.clearLive()
	}
}

func progressBar(percent, width int) string {
	filled := clampInt(percent, 0, 100) * width / 100
	return "|" + strings.Repeat("█", filled) + strings.Repeat("-", width-filled) + "|"
}
