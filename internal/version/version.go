package version

// Value is overridden at build time with -ldflags "-X smart-ytdl/internal/version.Value=v1.2.3".
var Value = "dev"
