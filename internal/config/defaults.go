package config

const (
	DefaultConfigPath          = "ytdownload.json"
	DefaultDownloadDir         = "downloads"
	DefaultOutputTemplate      = "%(title)s.%(ext)s"
	DefaultUserAgent           = "Mozilla/5.0"
	DefaultFragments           = 4
	DefaultSocketTimeoutSec    = 10
	DefaultThumbnailTimeoutSec = 3
	DefaultAudioFormat         = "mp3"
	DefaultAudioQuality        = "192K"
	DefaultMergeFormat         = "mp4"
	DefaultCoverMaxSize        = 500
	DefaultProgressIntervalMS  = 250
	DefaultDownloadLimitMBps   = 0
	DefaultProxyMode           = ProxyModeOff
	DefaultJSRuntime           = JSRuntimeAuto
	DefaultBrowserCookieAgent  = "chrome"

	JSRuntimeAuto    = "auto"
	JSRuntimeDeno    = "deno"
	JSRuntimeNode    = "node"
	JSRuntimeQuickJS = "quickjs"
	JSRuntimeBun     = "bun"
)
