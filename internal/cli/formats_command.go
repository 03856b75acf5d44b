package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"smart-ytdl/internal/config"
	"smart-ytdl/internal/format"
	"smart-ytdl/internal/metadata"
)

type formatChoice struct {
	Descriptor string `json:"descriptor"`
	Selector   string `json:"selector"`
}

type formatsResult struct {
	SourceURL      string         `json:"source_url"`
	Title          string         `json:"title"`
	Uploader       string         `json:"uploader,omitempty"`
	Duration       float64        `json:"duration,omitempty"`
	ThumbnailBytes int            `json:"thumbnail_bytes"`
	Choices        []formatChoice `json:"choices"`
}

func runFormats(args []string) error {
	fs := flag.NewFlagSet("formats", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: formats [--json] <url>")
	}
	sourceURL, err := metadata.ValidateSourceURL(fs.Arg(0))
	if err != nil {
		return err
	}

	s, err := loadSettings(*configPath, "")
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eng := newEngine(s, "")
	notify := func(status string) {
		if !*jsonOut {
			fmt.Printf("  %s\n", status)
		}
	}
	rec, _, err := eng.cache.Resolve(ctx, sourceURL, eng.provider, notify)
	if err != nil {
		return err
	}

	res := formatsResult{
		SourceURL:      rec.URL,
		Title:          rec.Title,
		Uploader:       rec.Uploader,
		Duration:       rec.Duration,
		ThumbnailBytes: len(rec.Thumbnail),
	}
	for _, d := range rec.Qualities {
		res.Choices = append(res.Choices, formatChoice{Descriptor: d, Selector: format.Select(d).Selector()})
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Println(kv("title", res.Title))
	fmt.Println(kv("uploader", defaultIfEmpty(res.Uploader, "(unknown)")))
	fmt.Println(kv("duration", formatDuration(res.Duration)))
	fmt.Println(kv("thumbnail", formatBytesIEC(int64(res.ThumbnailBytes))))
	fmt.Println("qualities:")
	width := 0
	for _, c := range res.Choices {
		width = max(width, len(c.Descriptor))
	}
	for i, c := range res.Choices {
		fmt.Printf("  %d. %-*s  %s\n", i+1, width, c.Descriptor, strings.TrimSpace(c.Selector))
	}
	return nil
}
