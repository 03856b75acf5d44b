package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type Kind int

const (
	KindBest Kind = iota
	KindAudio
	KindVideoOnly
	KindVideoWithAudio
)

const (
	AudioDescriptor = "Audio Only (MP3)"
	BestDescriptor  = "Best Quality"

	videoOnlySuffix = " (Video Only)"
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideoOnly:
		return "video_only"
	case KindVideoWithAudio:
		return "video_with_audio"
	default:
		return "best"
	}
}

// Spec is the parsed form of a user-facing quality descriptor.
// MaxHeight is only meaningful for KindVideoOnly and KindVideoWithAudio.
type Spec struct {
	Kind      Kind `json:"kind"`
	MaxHeight int  `json:"max_height,omitempty"`
}

func Audio() Spec { return Spec{Kind: KindAudio} }

func Best() Spec { return Spec{Kind: KindBest} }

func VideoOnly(height int) Spec { return Spec{Kind: KindVideoOnly, MaxHeight: height} }

func VideoWithAudio(height int) Spec { return Spec{Kind: KindVideoWithAudio, MaxHeight: height} }

// Select never fails: anything it cannot read falls back to Best.
func Select(descriptor string) Spec {
	if strings.Contains(descriptor, "Audio Only") {
		return Audio()
	}
	height, ok := longestDigitRun(descriptor)
	if !ok {
		return Best()
	}
	if strings.Contains(descriptor, "Video Only") {
		return VideoOnly(height)
	}
	return VideoWithAudio(height)
}

// longestDigitRun returns the first maximal run of ASCII digits, preferring
// the longer run when several exist.
func longestDigitRun(s string) (int, bool) {
	bestStart, bestLen := -1, 0
	start := -1
	flush := func(end int) {
		if start >= 0 && end-start > bestLen {
			bestStart, bestLen = start, end-start
		}
		start = -1
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(s))
	if bestStart < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[bestStart : bestStart+bestLen])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (s Spec) IsAudio() bool {
	return s.Kind == KindAudio
}

// Selector returns the yt-dlp -f expression for the spec.
func (s Spec) Selector() string {
	switch s.Kind {
	case KindAudio:
		return "bestaudio/best"
	case KindVideoOnly:
		return fmt.Sprintf("bestvideo[height<=%d]", s.MaxHeight)
	case KindVideoWithAudio:
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", s.MaxHeight, s.MaxHeight)
	default:
		return "bv*+ba/b"
	}
}

func (s Spec) Descriptor() string {
	switch s.Kind {
	case KindAudio:
		return AudioDescriptor
	case KindVideoOnly:
		return fmt.Sprintf("%dp%s", s.MaxHeight, videoOnlySuffix)
	case KindVideoWithAudio:
		return fmt.Sprintf("%dp", s.MaxHeight)
	default:
		return BestDescriptor
	}
}

// Descriptors builds the quality menu for a set of available video heights:
// combined and video-only entries per height, highest first, then audio.
func Descriptors(heights []int) []string {
	uniq := make(map[int]bool, len(heights))
	sorted := make([]int, 0, len(heights))
	for _, h := range heights {
		if h <= 0 || uniq[h] {
			continue
		}
		uniq[h] = true
		sorted = append(sorted, h)
	}
	if len(sorted) == 0 {
		return []string{BestDescriptor}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	out := make([]string, 0, len(sorted)*2+1)
	for _, h := range sorted {
		out = append(out, VideoWithAudio(h).Descriptor(), VideoOnly(h).Descriptor())
	}
	return append(out, AudioDescriptor)
}
