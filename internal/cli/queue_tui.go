package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"smart-ytdl/internal/config"
	"smart-ytdl/internal/metadata"
	"smart-ytdl/internal/model"
	"smart-ytdl/internal/queue"
	"smart-ytdl/internal/runstore"
	"smart-ytdl/internal/scheduler"
)

type queueMode int

const (
	queueModeBrowse queueMode = iota
	queueModeURL
	queueModeLookup
	queueModeQuality
	queueModeEditTitle
	queueModeRemoveConfirm
)

// queueRunner is the part of the scheduler the TUI drives.
type queueRunner interface {
	Run(ctx context.Context, userInitiated bool) (scheduler.Result, error)
	Cancel() bool
	Active() (string, bool)
}

type queueModel struct {
	ctx    context.Context
	eng    *engine
	runner queueRunner
	// send delivers messages from background goroutines; nil drops them.
	send func(tea.Msg)

	tasks  []model.DownloadTask
	cursor int
	width  int
	height int
	mode   queueMode

	input   textinput.Model
	spin    spinner.Model
	bar     progress.Model
	record  metadata.Record
	qCursor int

	lookupURL     string
	lookupStatus  string
	editID        string
	removeID      string
	statusMessage string
}

type schedulerEventMsg struct {
	ev scheduler.Event
}

type lookupStatusMsg struct {
	url    string
	status string
}

type lookupDoneMsg struct {
	url    string
	record metadata.Record
	cached bool
	err    error
}

type runResultMsg struct {
	result scheduler.Result
	err    error
}

type cancelResultMsg struct {
	cancelled bool
}

var (
	queueTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	queueMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	queueErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	queueOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	queuePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queueSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

func runQueue(args []string) error {
	fs := flag.NewFlagSet("queue", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	outputDir := fs.String("output-dir", "", "download directory override")
	logDir := fs.String("log-dir", "", "write raw yt-dlp output per task into this directory")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("queue requires an interactive terminal (TTY)")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng := newEngine(settings, *logDir)
	var p *tea.Program
	sched, err := eng.newScheduler(func(ev scheduler.Event) {
		p.Send(schedulerEventMsg{ev: ev})
	})
	if err != nil {
		return err
	}

	m := newQueueModel(ctx, eng, sched)
	m.send = func(msg tea.Msg) { p.Send(msg) }
	p = tea.NewProgram(m, tea.WithAltScreen())

	serveDone := make(chan error, 1)
	go func() { serveDone <- sched.Serve(ctx) }()

	finalModel, runErr := p.Run()
	cancel()
	<-serveDone
	if runErr != nil {
		if strings.Contains(strings.ToLower(runErr.Error()), "tty") {
			return errors.New("queue requires an interactive terminal (TTY)")
		}
		return runErr
	}
	if fm, ok := finalModel.(queueModel); ok {
		done, failed := 0, 0
		for _, t := range fm.eng.queue.Tasks() {
			switch t.Status {
			case model.StatusCompleted:
				done++
			case model.StatusFailed:
				failed++
			}
		}
		fmt.Printf("queue: completed=%d failed=%d dir=%s\n", done, failed, settings.DownloadDir)
	}
	return nil
}

func newQueueModel(ctx context.Context, eng *engine, runner queueRunner) queueModel {
	in := textinput.New()
	in.CharLimit = 2048
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return queueModel{
		ctx:    ctx,
		eng:    eng,
		runner: runner,
		input:  in,
		spin:   sp,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		mode:   queueModeBrowse,
		tasks:  eng.queue.Tasks(),
	}
}

func (m queueModel) Init() tea.Cmd {
	return nil
}

func (m queueModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = max(m.width-8, 20)
		return m, nil
	case schedulerEventMsg:
		return m.applySchedulerEvent(msg.ev), nil
	case lookupStatusMsg:
		if m.mode == queueModeLookup && msg.url == m.lookupURL {
			m.lookupStatus = msg.status
		}
		return m, nil
	case lookupDoneMsg:
		return m.applyLookup(msg), nil
	case runResultMsg:
		switch {
		case msg.err != nil:
			m.statusMessage = "error: " + msg.err.Error()
		case msg.result.Err() != nil:
			m.statusMessage = msg.result.Err().Error()
		case msg.result == scheduler.Started:
			m.statusMessage = "downloads started"
		}
		m.refresh()
		return m, nil
	case cancelResultMsg:
		if !msg.cancelled {
			m.statusMessage = "nothing is downloading"
		}
		return m, nil
	case spinner.TickMsg:
		if m.mode != queueModeLookup {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch m.mode {
	case queueModeURL:
		return m.updateURL(keyMsg)
	case queueModeLookup:
		return m.updateLookup(keyMsg)
	case queueModeQuality:
		return m.updateQuality(keyMsg)
	case queueModeEditTitle:
		return m.updateEditTitle(keyMsg)
	case queueModeRemoveConfirm:
		return m.updateRemoveConfirm(keyMsg)
	default:
		return m.updateBrowse(keyMsg)
	}
}

func (m *queueModel) refresh() {
	m.tasks = m.eng.queue.Tasks()
	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m queueModel) applySchedulerEvent(ev scheduler.Event) queueModel {
	m.refresh()
	switch ev.Type {
	case scheduler.TaskStarted:
		m.statusMessage = "downloading: " + ev.Task.Title
	case scheduler.TaskCompleted:
		m.statusMessage = "completed: " + defaultIfEmpty(ev.Task.Title, ev.Task.ID)
	case scheduler.TaskFailed:
		msg := ev.Task.StatusMessage
		if ev.Err != nil {
			msg = ev.Err.Message
		}
		m.statusMessage = "error: " + defaultIfEmpty(ev.Task.Title, ev.Task.ID) + ": " + msg
	case scheduler.BatchDone:
		m.statusMessage = "all downloads finished"
	}
	return m
}

func (m queueModel) applyLookup(msg lookupDoneMsg) queueModel {
	if m.mode != queueModeLookup || msg.url != m.lookupURL {
		return m
	}
	if msg.err != nil {
		m.mode = queueModeBrowse
		m.statusMessage = "error: " + msg.err.Error()
		return m
	}
	m.record = msg.record
	m.qCursor = 0
	m.mode = queueModeQuality
	m.statusMessage = ""
	return m
}

func (m queueModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
		return m, nil
	case "a", "n":
		m.mode = queueModeURL
		m.input.SetValue("")
		m.input.Placeholder = "https://www.youtube.com/watch?v=..."
		m.input.Focus()
		m.statusMessage = ""
		return m, textinput.Blink
	case "s", "enter":
		return m, runCmd(m.ctx, m.runner)
	case "x", "c":
		return m, cancelCmd(m.runner)
	case "e":
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		if t.Status != model.StatusPending {
			m.statusMessage = "only pending tasks can be renamed"
			return m, nil
		}
		m.mode = queueModeEditTitle
		m.editID = t.ID
		m.input.SetValue(t.Title)
		m.input.Placeholder = "title"
		m.input.CursorEnd()
		m.input.Focus()
		return m, textinput.Blink
	case "d", "delete", "backspace":
		t, ok := m.selected()
		if !ok {
			m.statusMessage = "select a task to remove"
			return m, nil
		}
		m.mode = queueModeRemoveConfirm
		m.removeID = t.ID
		return m, nil
	case "r":
		m.refresh()
		return m, nil
	}
	return m, nil
}

func (m queueModel) updateURL(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.mode = queueModeBrowse
		m.input.Blur()
		return m, nil
	case "enter":
		u, err := metadata.ValidateSourceURL(m.input.Value())
		if err != nil {
			m.statusMessage = "error: " + err.Error()
			return m, nil
		}
		m.input.Blur()
		m.mode = queueModeLookup
		m.lookupURL = u
		m.lookupStatus = "Connecting to YouTube..."
		return m, tea.Batch(m.spin.Tick, lookupCmd(m.ctx, m.eng, u, m.send))
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m queueModel) updateLookup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		// The lookup finishes in the background and still lands in the cache.
		m.mode = queueModeBrowse
		m.lookupURL = ""
		m.statusMessage = "lookup dismissed"
	}
	return m, nil
}

func (m queueModel) updateQuality(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	choices := m.record.Qualities
	switch msg.String() {
	case "ctrl+c", "esc":
		m.mode = queueModeBrowse
		return m, nil
	case "up", "k":
		if m.qCursor > 0 {
			m.qCursor--
		}
		return m, nil
	case "down", "j":
		if m.qCursor < len(choices)-1 {
			m.qCursor++
		}
		return m, nil
	case "enter":
		if len(choices) == 0 {
			m.mode = queueModeBrowse
			return m, nil
		}
		quality := choices[clampInt(m.qCursor, 0, len(choices)-1)]
		task, err := m.eng.enqueue(m.record, quality)
		m.mode = queueModeBrowse
		var dup *queue.DuplicateTaskError
		switch {
		case errors.As(err, &dup):
			m.statusMessage = "error: already queued at " + quality
		case err != nil:
			m.statusMessage = "error: " + err.Error()
		default:
			m.statusMessage = "queued: " + task.Title + " [" + task.Quality + "]"
		}
		m.refresh()
		m.cursor = max(len(m.tasks)-1, 0)
		return m, nil
	}
	return m, nil
}

func (m queueModel) updateEditTitle(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.mode = queueModeBrowse
		m.input.Blur()
		return m, nil
	case "enter":
		if err := m.eng.queue.Rename(m.editID, m.input.Value()); err != nil {
			m.statusMessage = "error: " + err.Error()
			return m, nil
		}
		m.mode = queueModeBrowse
		m.input.Blur()
		m.statusMessage = "title updated"
		m.refresh()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m queueModel) updateRemoveConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch strings.ToLower(msg.String()) {
	case "n", "esc", "ctrl+c":
		m.mode = queueModeBrowse
		m.removeID = ""
		m.statusMessage = "remove cancelled"
		return m, nil
	case "y", "enter":
		m.mode = queueModeBrowse
		idx := -1
		for i, t := range m.eng.queue.Tasks() {
			if t.ID == m.removeID {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.statusMessage = "error: task no longer queued"
			return m, nil
		}
		removed, err := m.eng.queue.Remove(idx)
		if err != nil {
			m.statusMessage = "error: " + err.Error()
			return m, nil
		}
		m.removeID = ""
		m.statusMessage = "removed: " + removed.Title
		m.refresh()
		if removed.Status == model.StatusDownloading {
			return m, cancelTaskCmd(m.runner, removed.ID)
		}
		return m, nil
	}
	return m, nil
}

func (m queueModel) selected() (model.DownloadTask, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return model.DownloadTask{}, false
	}
	return m.tasks[m.cursor], true
}

func runCmd(ctx context.Context, r queueRunner) tea.Cmd {
	return func() tea.Msg {
		res, err := r.Run(ctx, true)
		return runResultMsg{result: res, err: err}
	}
}

func cancelCmd(r queueRunner) tea.Cmd {
	return func() tea.Msg {
		return cancelResultMsg{cancelled: r.Cancel()}
	}
}

// cancelTaskCmd stops a removed task's run when the runner supports it.
func cancelTaskCmd(r queueRunner, taskID string) tea.Cmd {
	tc, ok := r.(interface{ CancelTask(string) bool })
	if !ok {
		return nil
	}
	return func() tea.Msg {
		tc.CancelTask(taskID)
		return nil
	}
}

func lookupCmd(ctx context.Context, eng *engine, url string, send func(tea.Msg)) tea.Cmd {
	return func() tea.Msg {
		notify := func(status string) {
			if send != nil {
				send(lookupStatusMsg{url: url, status: status})
			}
		}
		rec, hit, err := eng.cache.Resolve(ctx, url, eng.provider, notify)
		return lookupDoneMsg{url: url, record: rec, cached: hit, err: err}
	}
}

func (m queueModel) View() string {
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}
	switch m.mode {
	case queueModeURL:
		return m.viewInput("Add URL", "Paste a YouTube link and press Enter. Esc cancels.")
	case queueModeEditTitle:
		return m.viewInput("Edit Title", "Enter saves. Esc cancels.")
	case queueModeLookup:
		return m.viewLookup()
	case queueModeQuality:
		return m.viewQuality()
	case queueModeRemoveConfirm:
		return m.viewRemoveConfirm()
	default:
		return m.viewBrowse()
	}
}

func (m queueModel) viewBrowse() string {
	header := queueTitleStyle.Render("ytdownload queue") + "\n" +
		queueMutedStyle.Render("up/down: move | a: add URL | s/enter: start | x: cancel active | e: edit title | d: remove | q: quit")

	if m.width < 90 {
		body := lipgloss.JoinVertical(lipgloss.Left, m.renderTaskPanel(m.width), m.renderDetailsPanel(m.width))
		return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
	}
	leftW := clampInt(m.width*3/5, 50, 90)
	rightW := m.width - leftW - 1
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderTaskPanel(leftW), m.renderDetailsPanel(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusLine(m.width))
}

func (m queueModel) renderTaskPanel(width int) string {
	if len(m.tasks) == 0 {
		lines := []string{
			queueMutedStyle.Render("Queue is empty."),
			queueMutedStyle.Render("Press a to add a YouTube URL."),
		}
		return queuePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
	}

	maxRows := clampInt((m.height-10)/2, 2, 12)
	start, end := listWindow(len(m.tasks), m.cursor, maxRows)
	inner := max(width-6, 20)
	bar := m.bar
	bar.Width = clampInt(inner-18, 10, 40)

	lines := make([]string, 0, (end-start)*2+2)
	if start > 0 {
		lines = append(lines, queueMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		t := m.tasks[i]
		row := truncateRunes(fmt.Sprintf("%-11s %s [%s]", t.Status.Label(), t.Title, t.Quality), inner)
		if i == m.cursor {
			row = queueSelStyle.Width(inner).Render(row)
		}
		lines = append(lines, row)
		lines = append(lines, "  "+bar.ViewAs(float64(t.Percent)/100)+fmt.Sprintf(" %3d%%", t.Percent))
	}
	if end < len(m.tasks) {
		lines = append(lines, queueMutedStyle.Render("..."))
	}
	return queuePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m queueModel) renderDetailsPanel(width int) string {
	t, ok := m.selected()
	if !ok {
		return queuePanelStyle.Width(width).Render("No task selected")
	}
	lines := []string{
		"Task Details",
		"",
		kv("title", t.Title),
		kv("url", t.SourceURL),
		kv("quality", t.Quality),
		kv("status", t.Status.Label()),
		kv("message", defaultIfEmpty(t.StatusMessage, "-")),
		kv("uploader", defaultIfEmpty(t.Uploader, "-")),
	}
	if t.OutputPath != "" {
		lines = append(lines, kv("file", t.OutputPath))
	}
	if d := t.Duration(); d > 0 {
		lines = append(lines, kv("took", d.Round(time.Second).String()))
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], max(width-6, 12))
	}
	return queuePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m queueModel) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.statusMessage)
	if msg == "" {
		if id, busy := m.runner.Active(); busy {
			msg = "active task: " + id
		} else {
			msg = "Tip: add URLs, then press s to download them one after another."
		}
	}
	style := queueMutedStyle
	lower := strings.ToLower(msg)
	switch {
	case strings.HasPrefix(lower, "error:"):
		style = queueErrorStyle
	case strings.HasPrefix(lower, "queued:"), strings.HasPrefix(lower, "completed:"), strings.HasPrefix(lower, "all downloads"):
		style = queueOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, max(width-2, 10)))
}

func (m queueModel) viewInput(title, help string) string {
	body := m.input.View() + "\n" + queueMutedStyle.Render(help)
	if strings.HasPrefix(m.statusMessage, "error:") {
		body += "\n" + queueErrorStyle.Render(m.statusMessage)
	}
	panel := queuePanelStyle.Width(max(m.width-2, 40)).Render(body)
	return lipgloss.JoinVertical(lipgloss.Left, queueTitleStyle.Render(title), panel)
}

func (m queueModel) viewLookup() string {
	text := fmt.Sprintf("%s %s\n\n%s\n\n%s",
		m.spin.View(), m.lookupStatus,
		truncateRunes(m.lookupURL, max(m.width-12, 20)),
		queueMutedStyle.Render("Esc dismisses the lookup."))
	boxW := clampInt(m.width-8, 36, 90)
	panel := queuePanelStyle.Width(boxW).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func (m queueModel) viewQuality() string {
	lines := []string{
		queueTitleStyle.Render(truncateRunes(m.record.Title, max(m.width-8, 20))),
		queueMutedStyle.Render(kv("uploader", defaultIfEmpty(m.record.Uploader, "-")) + "  " + kv("duration", formatDuration(m.record.Duration))),
		"",
	}
	for i, q := range m.record.Qualities {
		line := "  " + q
		if i == m.qCursor {
			line = queueSelStyle.Render("> " + q)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", queueMutedStyle.Render("up/down: choose | enter: add to queue | esc: cancel"))
	return queuePanelStyle.Width(max(m.width-2, 40)).Render(strings.Join(lines, "\n"))
}

func (m queueModel) viewRemoveConfirm() string {
	title := m.removeID
	for _, t := range m.tasks {
		if t.ID == m.removeID {
			title = t.Title
			if t.Status == model.StatusDownloading {
				title += " (downloading; it will be cancelled)"
			}
			break
		}
	}
	text := fmt.Sprintf("Remove '%s' from the queue?\n\nFiles already downloaded stay on disk.\n\nPress y or Enter to confirm, n or Esc to cancel.", title)
	boxW := clampInt(m.width-8, 36, 80)
	panel := queuePanelStyle.Width(boxW).Render(text)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}
