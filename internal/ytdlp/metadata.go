package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"smart-ytdl/internal/format"
	"smart-ytdl/internal/metadata"
)

const maxThumbnailBytes = 8 << 20

type MetadataOptions struct {
	Options
	ThumbnailTimeout time.Duration
	HTTPClient       *http.Client
}

// MetadataProvider looks up a single video with `yt-dlp -J` and fetches its
// thumbnail over HTTP.
type MetadataProvider struct {
	opts MetadataOptions
}

func NewMetadataProvider(opts MetadataOptions) *MetadataProvider {
	if opts.ThumbnailTimeout <= 0 {
		opts.ThumbnailTimeout = 3 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &MetadataProvider{opts: opts}
}

type videoInfo struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	Channel    string        `json:"channel"`
	Duration   float64       `json:"duration"`
	Thumbnail  string        `json:"thumbnail"`
	Thumbnails []thumbnail   `json:"thumbnails"`
	Formats    []videoFormat `json:"formats"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type videoFormat struct {
	FormatID string `json:"format_id"`
	VCodec   string `json:"vcodec"`
	Height   *int   `json:"height"`
}

func (p *MetadataProvider) Fetch(ctx context.Context, sourceURL string, notify func(string)) (metadata.Record, error) {
	if notify == nil {
		notify = func(string) {}
	}
	if strings.TrimSpace(sourceURL) == "" {
		return metadata.Record{}, fmt.Errorf("source URL is required")
	}
	binary, err := p.opts.lookBinary()
	if err != nil {
		return metadata.Record{}, err
	}

	notify("Connecting to YouTube...")
	args := []string{"-J", "--no-playlist", "--no-warnings"}
	common, err := p.opts.commonArgs(p.opts.proxyFor(0))
	if err != nil {
		return metadata.Record{}, err
	}
	args = append(args, common...)
	args = append(args, "--", sourceURL)

	data, err := videoJSON(ctx, binary, args)
	if err != nil {
		return metadata.Record{}, err
	}

	notify("Parsing video formats...")
	var info videoInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return metadata.Record{}, fmt.Errorf("parse yt-dlp JSON: %w", err)
	}

	rec := metadata.Record{
		URL:       sourceURL,
		Title:     strings.TrimSpace(info.Title),
		Qualities: format.Descriptors(videoHeights(info.Formats)),
		Uploader:  firstNonEmpty(info.Uploader, info.Channel),
		Duration:  info.Duration,
	}
	if rec.Title == "" {
		rec.Title = metadata.UnknownTitle
	}

	if thumbURL := bestThumbnail(info); thumbURL != "" {
		notify("Downloading thumbnail...")
		// A missing thumbnail never fails the lookup.
		if data, err := p.fetchThumbnail(ctx, thumbURL); err == nil {
			rec.Thumbnail = data
		}
	}

	notify("Finalizing data...")
	return rec, nil
}

func videoJSON(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := errorMessage(stderr.String()); msg != "" {
			return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("yt-dlp failed: %w", err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}
	return stdout.Bytes(), nil
}

func videoHeights(formats []videoFormat) []int {
	out := make([]int, 0, len(formats))
	for _, f := range formats {
		if f.Height == nil || *f.Height <= 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(f.VCodec), "none") {
			continue
		}
		out = append(out, *f.Height)
	}
	return out
}

// bestThumbnail follows yt-dlp's ordering, where the last entry is the
// preferred one.
func bestThumbnail(info videoInfo) string {
	for i := len(info.Thumbnails) - 1; i >= 0; i-- {
		if u := strings.TrimSpace(info.Thumbnails[i].URL); u != "" {
			return u
		}
	}
	return strings.TrimSpace(info.Thumbnail)
}

func (p *MetadataProvider) fetchThumbnail(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ThumbnailTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if ua := strings.TrimSpace(p.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	resp, err := p.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("thumbnail HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
