package cli

import (
	"context"
	"strings"

	"smart-ytdl/internal/config"
	"smart-ytdl/internal/metadata"
	"smart-ytdl/internal/model"
	"smart-ytdl/internal/queue"
	"smart-ytdl/internal/scheduler"
	"smart-ytdl/internal/tagging"
	"smart-ytdl/internal/ytdlp"
)

// engine bundles the pieces both front-ends share: one queue, one metadata
// cache, and the yt-dlp backed provider and executor built from settings.
type engine struct {
	settings config.Settings
	queue    *queue.Queue
	cache    *metadata.Cache
	provider metadata.Provider
	executor scheduler.Executor
}

func newEngine(s config.Settings, logDir string) *engine {
	base := ytdlpOptions(s)
	return &engine{
		settings: s,
		queue:    queue.New(),
		cache:    metadata.NewCache(),
		provider: ytdlp.NewMetadataProvider(ytdlp.MetadataOptions{
			Options:          base,
			ThumbnailTimeout: s.ThumbnailTimeout(),
		}),
		executor: ytdlp.NewExecutor(ytdlp.DownloadOptions{
			Options:           base,
			OutputTemplate:    s.OutputTemplate,
			Fragments:         s.Fragments,
			DownloadLimitMBps: s.DownloadLimitMBps,
			AudioFormat:       s.AudioFormat,
			AudioQuality:      s.AudioQuality,
			MergeFormat:       s.MergeFormat,
			ProgressInterval:  s.ProgressInterval(),
			LogDir:            strings.TrimSpace(logDir),
			PostProcess:       audioTagHook(s),
		}),
	}
}

func ytdlpOptions(s config.Settings) ytdlp.Options {
	return ytdlp.Options{
		UserAgent:          s.UserAgent,
		CookiesPath:        s.CookiesPath,
		CookiesFromBrowser: s.CookiesFromBrowser,
		JSRuntime:          s.JSRuntime,
		Proxies:            s.RotationProxies(),
		SocketTimeout:      s.SocketTimeout(),
	}
}

// audioTagHook writes title, uploader and cover into extracted MP3 files.
func audioTagHook(s config.Settings) func(context.Context, scheduler.Job, string) error {
	if !s.TagAudioEnabled() {
		return nil
	}
	coverMax := s.CoverMaxSize
	return func(_ context.Context, job scheduler.Job, path string) error {
		if !job.Format.IsAudio() || !tagging.IsMP3(path) {
			return nil
		}
		meta := tagging.Meta{Title: job.Title, Artist: job.Uploader}
		if len(job.Thumbnail) > 0 {
			if cover, err := tagging.Cover(job.Thumbnail, coverMax); err == nil {
				meta.Cover = cover
			}
		}
		return tagging.TagMP3(path, meta)
	}
}

// enqueue adds a pending task for rec at the chosen quality.
func (e *engine) enqueue(rec metadata.Record, quality string) (model.DownloadTask, error) {
	task := model.NewTask(queue.NewTaskID(), rec.URL, rec.Title, quality)
	task.Uploader = rec.Uploader
	task.Thumbnail = rec.Thumbnail
	if err := e.queue.Enqueue(task); err != nil {
		return model.DownloadTask{}, err
	}
	return task, nil
}

func (e *engine) newScheduler(onEvent func(scheduler.Event)) (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Queue:    e.queue,
		Executor: e.executor,
		Dest:     e.settings.DownloadDir,
		OnEvent:  onEvent,
	})
}

func loadSettings(configPath, outputDir string) (config.Settings, error) {
	s, err := config.Load(strings.TrimSpace(configPath))
	if err != nil {
		return config.Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return config.Settings{}, err
	}
	if dir := strings.TrimSpace(outputDir); dir != "" {
		s.DownloadDir = dir
	}
	return s, nil
}
