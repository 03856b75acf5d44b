package ytdlp

import (
	"bufio"
	"strings"
	"testing"
	"time"
)

func TestFormatRateLimitMBps(t *testing.T) {
	if got := formatRateLimitMBps(10); got != "10M" {
		t.Fatalf("unexpected rate format: got %q want %q", got, "10M")
	}
	if got := formatRateLimitMBps(2.5); got != "2.5M" {
		t.Fatalf("unexpected rate format: got %q want %q", got, "2.5M")
	}
}

func TestSplitByNewlineOrCR(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\r\rb\nc\r\nd"))
	sc.Split(splitByNewlineOrCR)
	got := []string{}
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	want := []string{"a", "b", "c", "d"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestErrorMessageStripsColoredPrefix(t *testing.T) {
	stderr := "WARNING: something\n\x1b[0;31mERROR:\x1b[0m [youtube] abc: Video unavailable\n"
	if got := errorMessage(stderr); got != "[youtube] abc: Video unavailable" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := errorMessage("plain failure\n\n"); got != "plain failure" {
		t.Fatalf("expected last line fallback, got %q", got)
	}
	long := "ERROR: " + strings.Repeat("x", 1000)
	if got := []rune(errorMessage(long)); len(got) != maxErrorLen {
		t.Fatalf("expected truncation to %d runes, got %d", maxErrorLen, len(got))
	}
}

func TestAppendLimitedKeepsTail(t *testing.T) {
	var out, errB strings.Builder
	for i := 0; i < 2000; i++ {
		appendLimited(&out, &errB, StreamStderr, "noise line")
	}
	appendLimited(&out, &errB, StreamStderr, "ERROR: final")
	if errB.Len() > 8192 {
		t.Fatalf("expected bounded buffer, got %d bytes", errB.Len())
	}
	if !strings.HasSuffix(errB.String(), "ERROR: final\n") {
		t.Fatalf("expected newest line to be kept")
	}
	if out.Len() != 0 {
		t.Fatalf("stderr lines must not land in stdout buffer")
	}
}

func TestCommonArgs(t *testing.T) {
	o := Options{UserAgent: "Mozilla/5.0", SocketTimeout: 10 * time.Second, CookiesFromBrowser: "chrome", JSRuntime: "deno"}
	args, err := o.commonArgs("http://proxy:8080")
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--user-agent Mozilla/5.0",
		"--socket-timeout 10",
		"--cookies-from-browser chrome",
		"--proxy http://proxy:8080",
		"--no-js-runtimes --js-runtimes deno",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in %q", want, joined)
		}
	}

	if _, err := (Options{JSRuntime: "python"}).commonArgs(""); err == nil {
		t.Fatalf("expected invalid js runtime error")
	}
	if _, err := (Options{CookiesPath: "/does/not/exist.txt"}).commonArgs(""); err == nil {
		t.Fatalf("expected missing cookies file error")
	}
}

func TestProxyRotation(t *testing.T) {
	o := Options{Proxies: []string{"p1", "p2"}}
	if o.proxyFor(0) != "p1" || o.proxyFor(1) != "p2" || o.proxyFor(2) != "p1" {
		t.Fatalf("unexpected rotation")
	}
	if (Options{}).proxyFor(3) != "" {
		t.Fatalf("expected no proxy")
	}
}
