package cli

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"smart-ytdl/internal/metadata"
	"smart-ytdl/internal/model"
	"smart-ytdl/internal/queue"
	"smart-ytdl/internal/scheduler"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	rec   metadata.Record
	err   error
}

func (p *fakeProvider) Fetch(ctx context.Context, sourceURL string, notify func(string)) (metadata.Record, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	notify("Connecting to YouTube...")
	notify("Finalizing data...")
	if p.err != nil {
		return metadata.Record{}, p.err
	}
	rec := p.rec
	rec.URL = sourceURL
	return rec, nil
}

type fakeRunner struct {
	result    scheduler.Result
	runs      int
	cancelled []string
	active    string
}

func (r *fakeRunner) Run(ctx context.Context, userInitiated bool) (scheduler.Result, error) {
	r.runs++
	return r.result, nil
}

func (r *fakeRunner) Cancel() bool {
	return r.CancelTask("")
}

func (r *fakeRunner) CancelTask(id string) bool {
	r.cancelled = append(r.cancelled, id)
	return r.active != ""
}

func (r *fakeRunner) Active() (string, bool) {
	return r.active, r.active != ""
}

func newTestQueueModel(p metadata.Provider, r queueRunner) queueModel {
	eng := &engine{queue: queue.New(), cache: metadata.NewCache(), provider: p}
	return newQueueModel(context.Background(), eng, r)
}

func press(t *testing.T, m queueModel, keys ...tea.KeyMsg) (queueModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(queueModel)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var enter = tea.KeyMsg{Type: tea.KeyEnter}

func TestQueueAddURLFlow(t *testing.T) {
	prov := &fakeProvider{rec: metadata.Record{Title: "Song", Uploader: "Chan", Qualities: []string{"720p", "720p (Video Only)", "Audio Only (MP3)"}}}
	m := newTestQueueModel(prov, &fakeRunner{})

	m, _ = press(t, m, runes("a"))
	if m.mode != queueModeURL {
		t.Fatalf("expected URL mode, got %v", m.mode)
	}
	m, cmd := press(t, m, runes("https://youtu.be/abc"), enter)
	if m.mode != queueModeLookup || m.lookupURL != "https://youtu.be/abc" {
		t.Fatalf("expected lookup mode for URL, got mode=%v url=%q", m.mode, m.lookupURL)
	}
	if cmd == nil {
		t.Fatal("expected lookup command")
	}

	var statuses []string
	done := lookupCmd(context.Background(), m.eng, m.lookupURL, func(msg tea.Msg) {
		if s, ok := msg.(lookupStatusMsg); ok {
			statuses = append(statuses, s.status)
		}
	})()
	if len(statuses) != 2 {
		t.Fatalf("expected lookup status messages, got %v", statuses)
	}
	next, _ := m.Update(done)
	m = next.(queueModel)
	if m.mode != queueModeQuality {
		t.Fatalf("expected quality mode, got %v", m.mode)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, enter)
	if m.mode != queueModeBrowse {
		t.Fatalf("expected browse mode after choosing quality")
	}
	if len(m.tasks) != 1 || m.tasks[0].Quality != "Audio Only (MP3)" || m.tasks[0].Uploader != "Chan" {
		t.Fatalf("unexpected queued tasks %+v", m.tasks)
	}
	if !strings.HasPrefix(m.statusMessage, "queued:") {
		t.Fatalf("expected queued status, got %q", m.statusMessage)
	}

	// Same URL and quality again is rejected; the cached record is reused.
	m, _ = press(t, m, runes("a"), runes("https://youtu.be/abc"), enter)
	next, _ = m.Update(lookupCmd(context.Background(), m.eng, m.lookupURL, nil)())
	m = next.(queueModel)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, enter)
	if !strings.Contains(m.statusMessage, "already queued") {
		t.Fatalf("expected duplicate error, got %q", m.statusMessage)
	}
	if prov.calls != 1 {
		t.Fatalf("expected cached lookup, provider called %d times", prov.calls)
	}
}

func TestQueueRejectsInvalidURL(t *testing.T) {
	m := newTestQueueModel(&fakeProvider{}, &fakeRunner{})
	m, _ = press(t, m, runes("a"), runes("https://vimeo.com/1"), enter)
	if m.mode != queueModeURL {
		t.Fatalf("expected to stay in URL mode, got %v", m.mode)
	}
	if !strings.HasPrefix(m.statusMessage, "error:") {
		t.Fatalf("expected error status, got %q", m.statusMessage)
	}
}

func TestQueueLookupFailureReturnsToBrowse(t *testing.T) {
	m := newTestQueueModel(&fakeProvider{err: errors.New("Private video")}, &fakeRunner{})
	m, _ = press(t, m, runes("a"), runes("https://youtu.be/x"), enter)
	next, _ := m.Update(lookupCmd(context.Background(), m.eng, m.lookupURL, nil)())
	m = next.(queueModel)
	if m.mode != queueModeBrowse || !strings.Contains(m.statusMessage, "Private video") {
		t.Fatalf("expected browse mode with error, got mode=%v status=%q", m.mode, m.statusMessage)
	}
}

func TestQueueStaleLookupIgnored(t *testing.T) {
	m := newTestQueueModel(&fakeProvider{}, &fakeRunner{})
	m, _ = press(t, m, runes("a"), runes("https://youtu.be/new"), enter)
	next, _ := m.Update(lookupDoneMsg{url: "https://youtu.be/old", record: metadata.Record{Title: "Old"}})
	m = next.(queueModel)
	if m.mode != queueModeLookup {
		t.Fatalf("expected stale lookup result to be ignored")
	}
}

func TestQueueStartAndCancelUseRunner(t *testing.T) {
	r := &fakeRunner{result: scheduler.NothingPending}
	m := newTestQueueModel(&fakeProvider{}, r)

	_, cmd := press(t, m, runes("s"))
	msg := cmd()
	if r.runs != 1 {
		t.Fatalf("expected one Run call, got %d", r.runs)
	}
	next, _ := m.Update(msg)
	m = next.(queueModel)
	if m.statusMessage != scheduler.ErrNothingPending.Error() {
		t.Fatalf("expected nothing pending message, got %q", m.statusMessage)
	}

	_, cmd = press(t, m, runes("x"))
	next, _ = m.Update(cmd())
	m = next.(queueModel)
	if m.statusMessage != "nothing is downloading" {
		t.Fatalf("expected idle cancel message, got %q", m.statusMessage)
	}
}

func TestQueueRemoveActiveTaskCancelsIt(t *testing.T) {
	r := &fakeRunner{}
	m := newTestQueueModel(&fakeProvider{}, r)
	task, _ := m.eng.queue.Add("https://youtu.be/a", "A", "720p")
	if _, err := m.eng.queue.MarkDownloading(task.ID); err != nil {
		t.Fatal(err)
	}
	m.refresh()

	m, _ = press(t, m, runes("d"))
	if m.mode != queueModeRemoveConfirm {
		t.Fatalf("expected remove confirmation")
	}
	if !strings.Contains(m.View(), "it will be cancelled") {
		t.Fatalf("expected confirmation to mention cancellation")
	}
	m, cmd := press(t, m, runes("y"))
	if m.eng.queue.Len() != 0 || len(m.tasks) != 0 {
		t.Fatalf("expected task removed")
	}
	if cmd == nil {
		t.Fatal("expected cancel command for the removed active task")
	}
	cmd()
	if len(r.cancelled) != 1 || r.cancelled[0] != task.ID {
		t.Fatalf("expected CancelTask(%s), got %v", task.ID, r.cancelled)
	}
}

func TestQueueEditTitleOnlyWhilePending(t *testing.T) {
	m := newTestQueueModel(&fakeProvider{}, &fakeRunner{})
	task, _ := m.eng.queue.Add("https://youtu.be/a", "Old", "720p")
	m.refresh()

	m, _ = press(t, m, runes("e"))
	if m.mode != queueModeEditTitle {
		t.Fatalf("expected edit mode")
	}
	m.input.SetValue("New Title")
	m, _ = press(t, m, enter)
	got, _ := m.eng.queue.Get(task.ID)
	if got.Title != "New Title" || m.mode != queueModeBrowse {
		t.Fatalf("expected renamed task, got %q mode=%v", got.Title, m.mode)
	}

	if _, err := m.eng.queue.MarkDownloading(task.ID); err != nil {
		t.Fatal(err)
	}
	m.refresh()
	m, _ = press(t, m, runes("e"))
	if m.mode != queueModeBrowse || !strings.Contains(m.statusMessage, "only pending") {
		t.Fatalf("expected rename refusal for active task")
	}
}

func TestQueueSchedulerEventsRefreshTasks(t *testing.T) {
	m := newTestQueueModel(&fakeProvider{}, &fakeRunner{})
	task, _ := m.eng.queue.Add("https://youtu.be/a", "A", "720p")
	if _, err := m.eng.queue.MarkDownloading(task.ID); err != nil {
		t.Fatal(err)
	}
	updated, _ := m.eng.queue.UpdateProgress(task.ID, 42, "1MiB/s | ETA: 00:10")

	next, _ := m.Update(schedulerEventMsg{ev: scheduler.Event{Type: scheduler.TaskProgress, Task: updated}})
	m = next.(queueModel)
	if len(m.tasks) != 1 || m.tasks[0].Percent != 42 {
		t.Fatalf("expected refreshed progress, got %+v", m.tasks)
	}
	view := m.View()
	if !strings.Contains(view, "42%") || !strings.Contains(view, model.StatusDownloading.Label()) {
		t.Fatalf("expected progress row in view:\n%s", view)
	}

	next, _ = m.Update(schedulerEventMsg{ev: scheduler.Event{Type: scheduler.BatchDone}})
	m = next.(queueModel)
	if m.statusMessage != "all downloads finished" {
		t.Fatalf("unexpected status %q", m.statusMessage)
	}
}
