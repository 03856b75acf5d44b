package progress

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"

	// LinePrefix marks machine-readable progress lines on yt-dlp stdout.
	LinePrefix = "smart-ytdl:progress "

	ProcessingMessage = "Processing..."
	notAvailable      = "N/A"
)

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`) // yt-dlp [download] ... at X
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+|Unknown)`)
	reOf    = regexp.MustCompile(`\bof\s+~?\s*([^\s]+)`)
)

// Signal is a raw progress report as yt-dlp produces it for its progress
// hooks. Byte counts are pointers because yt-dlp omits them when unknown.
type Signal struct {
	Status             string   `json:"status"`
	DownloadedBytes    *float64 `json:"downloaded_bytes,omitempty"`
	TotalBytes         *float64 `json:"total_bytes,omitempty"`
	TotalBytesEstimate *float64 `json:"total_bytes_estimate,omitempty"`
	PercentStr         string   `json:"_percent_str,omitempty"`
	SpeedStr           string   `json:"_speed_str,omitempty"`
	ETAStr             string   `json:"_eta_str,omitempty"`
	TotalBytesStr      string   `json:"_total_bytes_str,omitempty"`
}

type Update struct {
	Percent int
	Status  string
}

func Normalize(sig Signal) Update {
	if sig.Status == StatusFinished {
		return Update{Percent: 100, Status: ProcessingMessage}
	}
	return Update{
		Percent: percentOf(sig),
		Status:  clean(sig.SpeedStr) + " | ETA: " + clean(sig.ETAStr),
	}
}

func percentOf(sig Signal) int {
	total := sig.TotalBytes
	if total == nil || *total <= 0 {
		total = sig.TotalBytesEstimate
	}
	if total != nil && *total > 0 && sig.DownloadedBytes != nil {
		return clamp(int(math.Floor(*sig.DownloadedBytes / *total * 100)))
	}
	raw := strings.TrimSuffix(strings.TrimSpace(ansi.Strip(sig.PercentStr)), "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return 0
	}
	return clamp(int(v))
}

func clean(s string) string {
	v := strings.TrimSpace(ansi.Strip(s))
	if v == "" {
		return notAvailable
	}
	return v
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ParseLine decodes one line of yt-dlp output. Lines carrying LinePrefix are
// JSON progress dicts; plain "[download]" lines are read with regexes.
// Postprocessor lines are reported as finished.
func ParseLine(line string) (Signal, bool) {
	l := strings.TrimSpace(line)
	if l == "" {
		return Signal{}, false
	}
	if rest, ok := strings.CutPrefix(l, LinePrefix); ok {
		var sig Signal
		if err := json.Unmarshal([]byte(rest), &sig); err != nil {
			return Signal{}, false
		}
		if sig.Status == "" {
			sig.Status = StatusDownloading
		}
		return sig, true
	}

	l = ansi.Strip(l)
	switch {
	case strings.HasPrefix(l, "[download]"):
		m := rePct.FindStringSubmatch(l)
		if len(m) < 2 {
			return Signal{}, false
		}
		sig := Signal{Status: StatusDownloading, PercentStr: m[1] + "%"}
		if m := reSpeed.FindStringSubmatch(l); len(m) > 1 {
			sig.SpeedStr = m[1]
		}
		if m := reETA.FindStringSubmatch(l); len(m) > 1 {
			sig.ETAStr = m[1]
		}
		if m := reOf.FindStringSubmatch(l); len(m) > 1 {
			sig.TotalBytesStr = m[1]
		}
		return sig, true
	case strings.HasPrefix(l, "[Merger]"),
		strings.HasPrefix(l, "[ExtractAudio]"),
		strings.HasPrefix(l, "[VideoConvertor]"),
		strings.HasPrefix(l, "[FixupM3u8]"):
		return Signal{Status: StatusFinished}, true
	}
	return Signal{}, false
}

// Aggregator folds a stream of signals into updates and drops repeats.
type Aggregator struct {
	last    Update
	started bool
}

func (a *Aggregator) Observe(sig Signal) (Update, bool) {
	u := Normalize(sig)
	if a.started && u == a.last {
		return u, false
	}
	a.started = true
	a.last = u
	return u, true
}
