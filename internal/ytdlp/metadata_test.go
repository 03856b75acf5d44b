package ytdlp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestMetadataProviderFetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	tmp := t.TempDir()
	fixture := filepath.Join(tmp, "info.json")
	info := `{"id":"abc","title":"Song","uploader":"Artist","duration":61,
"thumbnails":[{"url":"` + srv.URL + `/small.jpg"},{"url":"` + srv.URL + `/max.jpg"}],
"formats":[{"format_id":"140","vcodec":"none","height":null},{"format_id":"136","vcodec":"avc1","height":720},{"format_id":"137","vcodec":"avc1","height":1080},{"format_id":"18","vcodec":"avc1","height":360},{"format_id":"sb0","vcodec":"none","height":90}]}`
	if err := os.WriteFile(fixture, []byte(info), 0o644); err != nil {
		t.Fatal(err)
	}
	argsLog := filepath.Join(tmp, "args.log")
	installFakeBinary(t, "yt-dlp", `#!/usr/bin/env bash
printf '%s\n' "$@" > "$YTDLP_ARGS_LOG"
cat "$YTDLP_FIXTURE"
`)
	t.Setenv("YTDLP_FIXTURE", fixture)
	t.Setenv("YTDLP_ARGS_LOG", argsLog)

	p := NewMetadataProvider(MetadataOptions{Options: Options{UserAgent: "Mozilla/5.0"}})
	var statuses []string
	rec, err := p.Fetch(context.Background(), "https://youtu.be/abc", func(s string) { statuses = append(statuses, s) })
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "Song" || rec.Uploader != "Artist" {
		t.Fatalf("unexpected record %+v", rec)
	}
	want := []string{"1080p", "1080p (Video Only)", "720p", "720p (Video Only)", "360p", "360p (Video Only)", "Audio Only (MP3)"}
	if !reflect.DeepEqual(rec.Qualities, want) {
		t.Fatalf("expected %v, got %v", want, rec.Qualities)
	}
	if string(rec.Thumbnail) != "jpeg-bytes" || gotUA != "Mozilla/5.0" {
		t.Fatalf("expected thumbnail fetched with user agent, got %q ua=%q", rec.Thumbnail, gotUA)
	}
	if len(statuses) != 4 || statuses[len(statuses)-1] != "Finalizing data..." {
		t.Fatalf("unexpected status sequence %v", statuses)
	}
	if !containsSeq(readArgs(t, argsLog), "-J", "--no-playlist") {
		t.Fatalf("expected -J lookup")
	}
}

func TestMetadataProviderThumbnailFailureIsSoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	installFakeBinary(t, "yt-dlp", `#!/usr/bin/env bash
echo '{"title":"","thumbnail":"`+srv.URL+`/x.jpg","formats":[]}'
`)
	rec, err := NewMetadataProvider(MetadataOptions{}).Fetch(context.Background(), "https://youtu.be/abc", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Thumbnail != nil {
		t.Fatalf("expected no thumbnail")
	}
	if rec.Title != "Unknown Title" || !reflect.DeepEqual(rec.Qualities, []string{"Best Quality"}) {
		t.Fatalf("unexpected fallback record %+v", rec)
	}
}

func TestMetadataProviderSurfacesError(t *testing.T) {
	installFakeBinary(t, "yt-dlp", `#!/usr/bin/env bash
echo 'ERROR: [youtube] abc: Private video' >&2
exit 1
`)
	_, err := NewMetadataProvider(MetadataOptions{}).Fetch(context.Background(), "https://youtu.be/abc", nil)
	if err == nil || !strings.Contains(err.Error(), "Private video") {
		t.Fatalf("expected yt-dlp error text, got %v", err)
	}
}
