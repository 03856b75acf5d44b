package ytdlp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
)

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"

	defaultBinary = "yt-dlp"
	maxErrorLen   = 300
)

// Options are the yt-dlp settings shared by metadata lookups and downloads.
type Options struct {
	Binary             string
	UserAgent          string
	CookiesPath        string
	CookiesFromBrowser string
	JSRuntime          string
	Proxies            []string
	SocketTimeout      time.Duration
}

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

func CheckJSRuntime(raw string) (string, error) {
	runtime, ok := normalizeJSRuntime(raw)
	if !ok {
		return "", fmt.Errorf("invalid js runtime %q (expected auto, deno, node, quickjs, or bun)", strings.TrimSpace(raw))
	}
	if runtime == "auto" {
		return runtime, nil
	}
	candidates := jsRuntimeBinaryCandidates(runtime)
	for _, bin := range candidates {
		if _, err := exec.LookPath(bin); err == nil {
			return runtime, nil
		}
	}
	return "", fmt.Errorf("missing dependency for js runtime %q: install one of [%s] or set js runtime to auto", runtime, strings.Join(candidates, ", "))
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(defaultBinary); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

func (o Options) binary() string {
	if b := strings.TrimSpace(o.Binary); b != "" {
		return b
	}
	return defaultBinary
}

func (o Options) lookBinary() (string, error) {
	path, err := exec.LookPath(o.binary())
	if err != nil {
		return "", fmt.Errorf("missing dependency: %s is not installed or not on PATH", o.binary())
	}
	return path, nil
}

// commonArgs are the network and auth flags every invocation carries.
func (o Options) commonArgs(proxy string) ([]string, error) {
	args := []string{}
	if ua := strings.TrimSpace(o.UserAgent); ua != "" {
		args = append(args, "--user-agent", ua)
	}
	if o.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(o.SocketTimeout/time.Second)))
	}
	if strings.TrimSpace(o.CookiesPath) != "" {
		cookiesPath, err := resolveCookiesPath(o.CookiesPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--cookies", cookiesPath)
	}
	if strings.TrimSpace(o.CookiesFromBrowser) != "" {
		args = append(args, "--cookies-from-browser", strings.TrimSpace(o.CookiesFromBrowser))
	}
	if strings.TrimSpace(proxy) != "" {
		args = append(args, "--proxy", strings.TrimSpace(proxy))
	}
	return appendJSRuntimeArgs(args, o.JSRuntime)
}

func (o Options) proxyFor(n int) string {
	if len(o.Proxies) == 0 {
		return ""
	}
	if n < 0 {
		n = -n
	}
	return o.Proxies[n%len(o.Proxies)]
}

func appendJSRuntimeArgs(args []string, rawRuntime string) ([]string, error) {
	runtime, ok := normalizeJSRuntime(rawRuntime)
	if !ok {
		return nil, fmt.Errorf("invalid js runtime %q (expected auto, deno, node, quickjs, or bun)", strings.TrimSpace(rawRuntime))
	}
	if runtime == "auto" {
		return args, nil
	}
	return append(args, "--no-js-runtimes", "--js-runtimes", runtime), nil
}

func normalizeJSRuntime(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "auto":
		return "auto", true
	case "deno", "node", "quickjs", "bun":
		return strings.ToLower(strings.TrimSpace(raw)), true
	default:
		return "", false
	}
}

func jsRuntimeBinaryCandidates(runtime string) []string {
	switch runtime {
	case "quickjs":
		return []string{"quickjs", "qjs"}
	default:
		return []string{runtime}
	}
}

type commandOutput struct {
	stdout string
	stderr string
}

// runCommand streams both pipes line by line into onLine and keeps a bounded
// tail of each for error reporting. Cancelling ctx interrupts the process.
func runCommand(ctx context.Context, binary string, args []string, logW io.Writer, onLine func(stream OutputStream, line string)) (commandOutput, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return commandOutput{}, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return commandOutput{}, fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return commandOutput{}, fmt.Errorf("start %s: %w", binary, err)
	}

	var outBuf strings.Builder
	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 16*1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			if logW != nil {
				_, _ = io.WriteString(logW, line+"\n")
			}
			mu.Unlock()

			if onLine != nil {
				onLine(stream, line)
			}
		}
	}

	wg.Add(2)
	go read(StreamStdout, stdoutPipe)
	go read(StreamStderr, stderrPipe)
	wg.Wait()

	waitErr := cmd.Wait()
	mu.Lock()
	out := commandOutput{stdout: outBuf.String(), stderr: errBuf.String()}
	mu.Unlock()
	if waitErr != nil {
		return out, fmt.Errorf("%s failed: %w", filepath.Base(binary), waitErr)
	}
	return out, nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// appendLimited keeps the last 8 KiB per stream; the tail is where yt-dlp
// puts its error.
func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	toWrite := line + "\n"
	if b.Len()+len(toWrite) > maxKeep {
		kept := b.String() + toWrite
		if len(kept) > maxKeep {
			kept = kept[len(kept)-maxKeep:]
		}
		b.Reset()
		b.WriteString(kept)
		return
	}
	b.WriteString(toWrite)
}

// errorMessage extracts the user-facing reason from yt-dlp stderr: the last
// "ERROR:" line with its colored prefix removed.
func errorMessage(stderr string) string {
	lines := strings.Split(stderr, "\n")
	lastLine := ""
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(ansi.Strip(lines[i]))
		if l == "" {
			continue
		}
		if lastLine == "" {
			lastLine = l
		}
		if rest, ok := strings.CutPrefix(l, "ERROR:"); ok {
			return truncate(strings.TrimSpace(rest), maxErrorLen)
		}
	}
	return truncate(lastLine, maxErrorLen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func formatRateLimitMBps(v float64) string {
	return fmt.Sprintf("%gM", v)
}

func resolveCookiesPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", nil
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve cookies path %s: %w", p, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cookies file %s: %w", abs, err)
	}
	return abs, nil
}
