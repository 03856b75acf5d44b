package ytdlp

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"smart-ytdl/internal/format"
	"smart-ytdl/internal/scheduler"
)

const fakeDownloadScript = `#!/usr/bin/env bash
printf '%s\n' "$@" > "$YTDLP_ARGS_LOG"
echo '[youtube] abc: Downloading webpage'
echo 'smart-ytdl:progress {"status":"downloading","downloaded_bytes":50,"total_bytes":100,"_speed_str":"1.00MiB/s","_eta_str":"00:01"}'
echo 'smart-ytdl:progress {"status":"finished","downloaded_bytes":100,"total_bytes":100}'
echo "smart-ytdl:file $YTDLP_OUT"
exit 0
`

func collect(t *testing.T, r scheduler.Run) []scheduler.ExecEvent {
	t.Helper()
	var out []scheduler.ExecEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for executor events")
			return out
		}
	}
}

func TestExecutorAudioJob(t *testing.T) {
	installFakeBinary(t, "yt-dlp", fakeDownloadScript)
	tmp := t.TempDir()
	argsLog := filepath.Join(tmp, "args.log")
	outFile := filepath.Join(tmp, "Song.mp3")
	t.Setenv("YTDLP_ARGS_LOG", argsLog)
	t.Setenv("YTDLP_OUT", outFile)

	var postPath atomic.Value
	exec := NewExecutor(DownloadOptions{
		Options: Options{UserAgent: "Mozilla/5.0"},
		LogDir:  filepath.Join(tmp, "logs"),
		PostProcess: func(ctx context.Context, job scheduler.Job, path string) error {
			postPath.Store(path)
			return nil
		},
	})
	job := scheduler.Job{TaskID: "task-1", URL: "https://youtu.be/abc", Format: format.Audio(), Dest: tmp, Title: "Song"}
	r, err := exec.Start(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, r)
	if len(events) < 2 {
		t.Fatalf("expected progress and completion, got %+v", events)
	}
	first := events[0]
	if first.Kind != scheduler.ExecProgress || first.Percent != 50 || first.Message != "1.00MiB/s | ETA: 00:01" {
		t.Fatalf("unexpected first event %+v", first)
	}
	last := events[len(events)-1]
	if last.Kind != scheduler.ExecCompleted || last.OutputPath != outFile {
		t.Fatalf("unexpected terminal event %+v", last)
	}
	if got, _ := postPath.Load().(string); got != outFile {
		t.Fatalf("expected post-process on %s, got %q", outFile, got)
	}

	args := readArgs(t, argsLog)
	if !containsSeq(args, "-f", "bestaudio/best") || !containsSeq(args, "-x", "--audio-format", "mp3", "--audio-quality", "192K") {
		t.Fatalf("missing audio args: %v", args)
	}
	if !containsSeq(args, "--", "https://youtu.be/abc") {
		t.Fatalf("expected url after --: %v", args)
	}
	if containsSeq(args, "--merge-output-format", "mp4") {
		t.Fatalf("audio jobs must not merge: %v", args)
	}
	if _, err := os.Stat(filepath.Join(tmp, "logs", "task-1.log")); err != nil {
		t.Fatalf("expected per-task log: %v", err)
	}
}

func TestExecutorVideoJobArgs(t *testing.T) {
	installFakeBinary(t, "yt-dlp", fakeDownloadScript)
	tmp := t.TempDir()
	argsLog := filepath.Join(tmp, "args.log")
	t.Setenv("YTDLP_ARGS_LOG", argsLog)
	t.Setenv("YTDLP_OUT", filepath.Join(tmp, "Clip.mp4"))

	exec := NewExecutor(DownloadOptions{DownloadLimitMBps: 2.5, Options: Options{Proxies: []string{"http://p1"}}})
	r, err := exec.Start(context.Background(), scheduler.Job{TaskID: "t", URL: "https://youtu.be/x", Format: format.VideoWithAudio(720), Dest: tmp})
	if err != nil {
		t.Fatal(err)
	}
	collect(t, r)

	args := readArgs(t, argsLog)
	for _, seq := range [][]string{
		{"-f", "bestvideo[height<=720]+bestaudio/best[height<=720]"},
		{"--merge-output-format", "mp4"},
		{"--limit-rate", "2.5M"},
		{"--proxy", "http://p1"},
		{"-P", tmp},
		{"--progress-template", "download:smart-ytdl:progress %(progress)j"},
	} {
		if !containsSeq(args, seq...) {
			t.Fatalf("expected %v in %v", seq, args)
		}
	}
}

func TestExecutorReportsCleanError(t *testing.T) {
	installFakeBinary(t, "yt-dlp", `#!/usr/bin/env bash
printf '\033[0;31mERROR:\033[0m [youtube] abc: Video unavailable\n' >&2
exit 1
`)
	exec := NewExecutor(DownloadOptions{})
	r, err := exec.Start(context.Background(), scheduler.Job{TaskID: "t", URL: "https://youtu.be/abc", Dest: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, r)
	last := events[len(events)-1]
	if last.Kind != scheduler.ExecError || last.Message != "[youtube] abc: Video unavailable" {
		t.Fatalf("unexpected terminal event %+v", last)
	}
}

func TestExecutorCancel(t *testing.T) {
	installFakeBinary(t, "yt-dlp", `#!/usr/bin/env bash
echo 'smart-ytdl:progress {"status":"downloading","_percent_str":"5%"}'
exec sleep 30
`)
	exec := NewExecutor(DownloadOptions{})
	r, err := exec.Start(context.Background(), scheduler.Job{TaskID: "t", URL: "https://youtu.be/abc", Dest: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	first := <-r.Events()
	if first.Kind != scheduler.ExecProgress || first.Percent != 5 {
		t.Fatalf("unexpected first event %+v", first)
	}
	r.Cancel()
	events := collect(t, r)
	last := events[len(events)-1]
	if last.Kind != scheduler.ExecError || last.Message != CancelledMessage {
		t.Fatalf("expected cancellation error, got %+v", last)
	}
}

func TestExecutorMissingBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	exec := NewExecutor(DownloadOptions{})
	if _, err := exec.Start(context.Background(), scheduler.Job{TaskID: "t", URL: "u", Dest: "d"}); err == nil {
		t.Fatalf("expected missing dependency error")
	}
}
