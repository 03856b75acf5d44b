package cli

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeYTDLPScript answers -J lookups with a small fixture and "downloads" by
// writing <id>.mp3 into the -P directory. Video id "bad" fails to download.
const fakeYTDLPScript = `#!/usr/bin/env bash
set -euo pipefail
echo "$*" >> "$YTDLP_CALLS"
url="${@: -1}"
id="${url##*=}"
for a in "$@"; do
  if [ "$a" = "-J" ]; then
    printf '{"id":"%s","title":"Video %s","uploader":"Chan","duration":75,"formats":[{"vcodec":"avc1","height":720},{"vcodec":"avc1","height":360}]}\n' "$id" "$id"
    exit 0
  fi
done
dest=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-P" ]; then dest="$a"; fi
  prev="$a"
done
if [ "$id" = "bad" ]; then
  echo "ERROR: [youtube] bad: Video unavailable" >&2
  exit 1
fi
echo 'smart-ytdl:progress {"status":"downloading","downloaded_bytes":5,"total_bytes":10}'
echo "payload" > "$dest/$id.mp3"
echo "smart-ytdl:file $dest/$id.mp3"
`

func setupFakeYTDLP(t *testing.T, tmp string) string {
	t.Helper()
	fakeBin := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(fakeBin, "yt-dlp"), []byte(fakeYTDLPScript), 0o755); err != nil {
		t.Fatal(err)
	}
	calls := filepath.Join(tmp, "calls.log")
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
	t.Setenv("YTDLP_CALLS", calls)
	return calls
}

func readCalls(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func downloadCalls(calls []string) []string {
	out := []string{}
	for _, c := range calls {
		if !strings.HasPrefix(c, "-J ") {
			out = append(out, c)
		}
	}
	return out
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
	}()
	defer r.Close()

	done := make(chan []byte)
	go func() {
		b, _ := io.ReadAll(r)
		done <- b
	}()

	fn()

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return string(<-done)
}

func decodeJSON(t *testing.T, output string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(output), v); err != nil {
		t.Fatalf("expected valid JSON output, got error: %v\noutput:\n%s", err, output)
	}
}
