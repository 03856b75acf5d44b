package config

import (
	"fmt"
	"strings"
	"time"

	"smart-ytdl/internal/runstore"
)

const (
	ProxyModeOff    = "off"
	ProxyModeRotate = "rotate"

	settingsSchemaVersion = 1
)

type Settings struct {
	SchemaVersion       int      `json:"schema_version"`
	UpdatedAt           string   `json:"updated_at,omitempty"`
	DownloadDir         string   `json:"download_dir"`
	OutputTemplate      string   `json:"output_template"`
	UserAgent           string   `json:"user_agent"`
	CookiesPath         string   `json:"cookies_path,omitempty"`
	CookiesFromBrowser  string   `json:"cookies_from_browser,omitempty"`
	JSRuntime           string   `json:"js_runtime"`
	Fragments           int      `json:"fragments"`
	DownloadLimitMBps   float64  `json:"download_limit_mb_s,omitempty"`
	ProxyMode           string   `json:"proxy_mode,omitempty"`
	Proxies             []string `json:"proxies,omitempty"`
	SocketTimeoutSec    int      `json:"socket_timeout_sec"`
	ThumbnailTimeoutSec int      `json:"thumbnail_timeout_sec"`
	AudioFormat         string   `json:"audio_format"`
	AudioQuality        string   `json:"audio_quality"`
	MergeFormat         string   `json:"merge_format"`
	TagAudio            *bool    `json:"tag_audio,omitempty"`
	CoverMaxSize        int      `json:"cover_max_size"`
	ProgressIntervalMS  int      `json:"progress_interval_ms"`
}

func Default() Settings {
	return normalize(Settings{})
}

func normalize(raw Settings) Settings {
	norm := raw
	norm.SchemaVersion = settingsSchemaVersion
	norm.DownloadDir = defaultIfEmpty(norm.DownloadDir, DefaultDownloadDir)
	norm.OutputTemplate = defaultIfEmpty(norm.OutputTemplate, DefaultOutputTemplate)
	norm.UserAgent = defaultIfEmpty(norm.UserAgent, DefaultUserAgent)
	norm.CookiesPath = strings.TrimSpace(norm.CookiesPath)
	norm.CookiesFromBrowser = strings.TrimSpace(norm.CookiesFromBrowser)
	if runtime, ok := NormalizeJSRuntime(norm.JSRuntime); ok {
		norm.JSRuntime = runtime
	} else {
		norm.JSRuntime = DefaultJSRuntime
	}
	if norm.Fragments <= 0 {
		norm.Fragments = DefaultFragments
	}
	if norm.DownloadLimitMBps < 0 {
		norm.DownloadLimitMBps = DefaultDownloadLimitMBps
	}
	norm.ProxyMode = normalizeProxyMode(norm.ProxyMode)
	norm.Proxies = normalizeProxyList(norm.Proxies)
	if norm.SocketTimeoutSec <= 0 {
		norm.SocketTimeoutSec = DefaultSocketTimeoutSec
	}
	if norm.ThumbnailTimeoutSec <= 0 {
		norm.ThumbnailTimeoutSec = DefaultThumbnailTimeoutSec
	}
	norm.AudioFormat = strings.ToLower(defaultIfEmpty(norm.AudioFormat, DefaultAudioFormat))
	norm.AudioQuality = defaultIfEmpty(norm.AudioQuality, DefaultAudioQuality)
	norm.MergeFormat = strings.ToLower(defaultIfEmpty(norm.MergeFormat, DefaultMergeFormat))
	if norm.TagAudio == nil {
		on := true
		norm.TagAudio = &on
	}
	if norm.CoverMaxSize <= 0 {
		norm.CoverMaxSize = DefaultCoverMaxSize
	}
	if norm.ProgressIntervalMS <= 0 {
		norm.ProgressIntervalMS = DefaultProgressIntervalMS
	}
	return norm
}

func (s Settings) TagAudioEnabled() bool {
	return s.TagAudio == nil || *s.TagAudio
}

func (s Settings) SocketTimeout() time.Duration {
	return time.Duration(s.SocketTimeoutSec) * time.Second
}

func (s Settings) ThumbnailTimeout() time.Duration {
	return time.Duration(s.ThumbnailTimeoutSec) * time.Second
}

func (s Settings) ProgressInterval() time.Duration {
	return time.Duration(s.ProgressIntervalMS) * time.Millisecond
}

// Validate rejects values normalize would otherwise silently replace.
func (s Settings) Validate() error {
	if _, ok := NormalizeJSRuntime(s.JSRuntime); !ok {
		return fmt.Errorf("invalid js runtime %q (expected auto, deno, node, quickjs, or bun)", strings.TrimSpace(s.JSRuntime))
	}
	if s.DownloadLimitMBps < 0 {
		return fmt.Errorf("download limit must be >= 0 MB/s")
	}
	mode := strings.ToLower(strings.TrimSpace(s.ProxyMode))
	if mode != "" && mode != ProxyModeOff && mode != ProxyModeRotate {
		return fmt.Errorf("proxy mode must be %s or %s", ProxyModeOff, ProxyModeRotate)
	}
	if mode == ProxyModeRotate && len(normalizeProxyList(s.Proxies)) == 0 {
		return fmt.Errorf("proxy mode %q requires at least one proxy", ProxyModeRotate)
	}
	switch strings.ToLower(strings.TrimSpace(s.MergeFormat)) {
	case "", "mp4", "mkv", "webm", "mov":
	default:
		return fmt.Errorf("unsupported merge format %q", s.MergeFormat)
	}
	return nil
}

// RotationProxies is the list downloads rotate through, or nil when proxy
// rotation is off.
func (s Settings) RotationProxies() []string {
	if normalizeProxyMode(s.ProxyMode) != ProxyModeRotate {
		return nil
	}
	return normalizeProxyList(s.Proxies)
}

func Load(path string) (Settings, error) {
	var raw Settings
	if _, err := runstore.ReadJSONIfExists(normalizePath(path), &raw); err != nil {
		return Settings{}, err
	}
	return normalize(raw), nil
}

func Save(path string, s Settings) (Settings, error) {
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	norm := normalize(s)
	norm.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	if err := runstore.WriteJSON(normalizePath(path), norm); err != nil {
		return Settings{}, err
	}
	return norm, nil
}

func NormalizeJSRuntime(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", JSRuntimeAuto:
		return JSRuntimeAuto, true
	case JSRuntimeDeno, JSRuntimeNode, JSRuntimeQuickJS, JSRuntimeBun:
		return strings.ToLower(strings.TrimSpace(raw)), true
	default:
		return "", false
	}
}

func normalizePath(path string) string {
	return defaultIfEmpty(path, DefaultConfigPath)
}

func normalizeProxyMode(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProxyModeRotate:
		return ProxyModeRotate
	default:
		return ProxyModeOff
	}
}

func normalizeProxyList(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, p := range raw {
		v := strings.TrimSpace(p)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func defaultIfEmpty(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
