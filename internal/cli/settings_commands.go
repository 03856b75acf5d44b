package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"smart-ytdl/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "proxy":
		return runSettingsProxy(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*configPath)
	s, err := config.Load(path)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    s,
		})
	}

	fmt.Printf("config: %s\n", path)
	printSettings(s)
	return nil
}

func printSettings(s config.Settings) {
	fmt.Println(kv("download_dir", s.DownloadDir))
	fmt.Println(kv("output_template", s.OutputTemplate))
	fmt.Println(kv("user_agent", s.UserAgent))
	fmt.Println(kv("cookies_path", defaultIfEmpty(s.CookiesPath, "(none)")))
	fmt.Println(kv("cookies_from_browser", defaultIfEmpty(s.CookiesFromBrowser, "(none)")))
	fmt.Println(kv("js_runtime", s.JSRuntime))
	fmt.Printf("fragments: %d\n", s.Fragments)
	fmt.Println(kv("download_limit_mb_s", formatFloat(s.DownloadLimitMBps)))
	fmt.Println(kv("proxy_mode", s.ProxyMode))
	fmt.Printf("proxies: %d\n", len(s.Proxies))
	fmt.Printf("socket_timeout_sec: %d\n", s.SocketTimeoutSec)
	fmt.Printf("thumbnail_timeout_sec: %d\n", s.ThumbnailTimeoutSec)
	fmt.Println(kv("audio_format", s.AudioFormat))
	fmt.Println(kv("audio_quality", s.AudioQuality))
	fmt.Println(kv("merge_format", s.MergeFormat))
	fmt.Println(kv("tag_audio", yesNo(s.TagAudioEnabled())))
	fmt.Printf("cover_max_size: %d\n", s.CoverMaxSize)
	fmt.Printf("progress_interval_ms: %d\n", s.ProgressIntervalMS)
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	downloadDir := fs.String("download-dir", "", "download directory")
	outputTemplate := fs.String("output-template", "", "yt-dlp output template")
	userAgent := fs.String("user-agent", "", "HTTP user agent")
	cookies := fs.String("cookies", "", "path to cookies.txt (empty clears)")
	browserCookies := fs.String("browser-cookies", "", "browser to read cookies from, e.g. chrome (empty clears)")
	jsRuntime := fs.String("js-runtime", "", "js runtime: auto|deno|node|quickjs|bun")
	fragments := fs.Int("fragments", 0, "yt-dlp fragment concurrency (-N)")
	downloadLimit := fs.Float64("download-limit-mb-s", 0, "download limit in MB/s (0 disables)")
	proxyMode := fs.String("proxy-mode", "", "proxy mode: off|rotate")
	socketTimeout := fs.Int("socket-timeout-sec", 0, "yt-dlp socket timeout in seconds")
	thumbTimeout := fs.Int("thumbnail-timeout-sec", 0, "thumbnail fetch timeout in seconds")
	audioFormat := fs.String("audio-format", "", "audio codec for Audio Only downloads")
	audioQuality := fs.String("audio-quality", "", "audio bitrate for Audio Only downloads, e.g. 192K")
	mergeFormat := fs.String("merge-format", "", "container for merged video: mp4|mkv|webm|mov")
	tagAudio := fs.String("tag-audio", "", "write title/artist/cover into MP3 files: y|n")
	coverMax := fs.Int("cover-max-size", 0, "max cover art edge in pixels")
	progressMS := fs.Int("progress-interval-ms", 0, "min interval between progress updates")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := strings.TrimSpace(*configPath)
	s, err := config.Load(path)
	if err != nil {
		return err
	}

	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr != nil {
			return
		}
		switch f.Name {
		case "download-dir":
			s.DownloadDir = *downloadDir
		case "output-template":
			s.OutputTemplate = *outputTemplate
		case "user-agent":
			s.UserAgent = *userAgent
		case "cookies":
			s.CookiesPath = *cookies
		case "browser-cookies":
			s.CookiesFromBrowser = *browserCookies
		case "js-runtime":
			s.JSRuntime = *jsRuntime
		case "fragments":
			if *fragments <= 0 {
				setErr = errors.New("--fragments must be >= 1")
			}
			s.Fragments = *fragments
		case "download-limit-mb-s":
			s.DownloadLimitMBps = *downloadLimit
		case "proxy-mode":
			s.ProxyMode = strings.ToLower(strings.TrimSpace(*proxyMode))
		case "socket-timeout-sec":
			if *socketTimeout <= 0 {
				setErr = errors.New("--socket-timeout-sec must be >= 1")
			}
			s.SocketTimeoutSec = *socketTimeout
		case "thumbnail-timeout-sec":
			if *thumbTimeout <= 0 {
				setErr = errors.New("--thumbnail-timeout-sec must be >= 1")
			}
			s.ThumbnailTimeoutSec = *thumbTimeout
		case "audio-format":
			s.AudioFormat = *audioFormat
		case "audio-quality":
			s.AudioQuality = *audioQuality
		case "merge-format":
			s.MergeFormat = *mergeFormat
		case "tag-audio":
			v, ok := parseBool(*tagAudio)
			if !ok {
				setErr = errors.New("--tag-audio must be y or n")
			}
			s.TagAudio = &v
		case "cover-max-size":
			if *coverMax <= 0 {
				setErr = errors.New("--cover-max-size must be >= 1")
			}
			s.CoverMaxSize = *coverMax
		case "progress-interval-ms":
			if *progressMS <= 0 {
				setErr = errors.New("--progress-interval-ms must be >= 1")
			}
			s.ProgressIntervalMS = *progressMS
		}
	})
	if setErr != nil {
		return setErr
	}

	saved, err := config.Save(path, s)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": path,
			"settings":    saved,
		})
	}
	fmt.Printf("updated settings in %s\n", path)
	printSettings(saved)
	return nil
}

func runSettingsProxy(args []string) error {
	if len(args) == 0 {
		printSettingsProxyUsage()
		return nil
	}
	switch args[0] {
	case "list":
		return runSettingsProxyList(args[1:])
	case "add":
		return runSettingsProxyAdd(args[1:])
	case "remove":
		return runSettingsProxyRemove(args[1:])
	case "help", "-h", "--help":
		printSettingsProxyUsage()
		return nil
	default:
		printSettingsProxyUsage()
		return fmt.Errorf("unknown settings proxy subcommand %q", args[0])
	}
}

func runSettingsProxyList(args []string) error {
	fs := flag.NewFlagSet("settings proxy list", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": strings.TrimSpace(*configPath),
			"proxy_mode":  s.ProxyMode,
			"proxies":     s.Proxies,
		})
	}
	if len(s.Proxies) == 0 {
		fmt.Println("no proxies configured")
		return nil
	}
	for i, p := range s.Proxies {
		fmt.Printf("%d. %s\n", i+1, p)
	}
	return nil
}

func runSettingsProxyAdd(args []string) error {
	fs := flag.NewFlagSet("settings proxy add", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	value := fs.String("value", "", "proxy URL to add")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*value) == "" {
		return errors.New("--value is required")
	}

	path := strings.TrimSpace(*configPath)
	s, err := config.Load(path)
	if err != nil {
		return err
	}
	s.Proxies = append(s.Proxies, strings.TrimSpace(*value))
	saved, err := config.Save(path, s)
	if err != nil {
		return err
	}
	fmt.Printf("proxy added. total proxies: %d\n", len(saved.Proxies))
	return nil
}

func runSettingsProxyRemove(args []string) error {
	fs := flag.NewFlagSet("settings proxy remove", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	value := fs.String("value", "", "proxy URL to remove")
	index := fs.Int("index", 0, "1-based proxy index to remove")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*value) == "" && *index <= 0 {
		return errors.New("set --value or --index")
	}

	path := strings.TrimSpace(*configPath)
	s, err := config.Load(path)
	if err != nil {
		return err
	}

	target := -1
	if v := strings.TrimSpace(*value); v != "" {
		for i, p := range s.Proxies {
			if p == v {
				target = i
				break
			}
		}
		if target < 0 {
			return errors.New("proxy not found")
		}
	} else {
		target = *index - 1
		if target >= len(s.Proxies) {
			return fmt.Errorf("--index out of range (1..%d)", len(s.Proxies))
		}
	}

	s.Proxies = append(s.Proxies[:target:target], s.Proxies[target+1:]...)
	if len(s.Proxies) == 0 {
		s.ProxyMode = config.ProxyModeOff
	}
	saved, err := config.Save(path, s)
	if err != nil {
		return err
	}
	fmt.Printf("proxy removed. total proxies: %d\n", len(saved.Proxies))
	return nil
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set [--download-dir DIR] [--js-runtime R] [--download-limit-mb-s N] [--proxy-mode off|rotate] ...")
	fmt.Println("  settings proxy list")
	fmt.Println("  settings proxy add --value <proxy-url>")
	fmt.Println("  settings proxy remove --value <proxy-url> | --index <n>")
}

func printSettingsProxyUsage() {
	fmt.Println("settings proxy commands:")
	fmt.Println("  settings proxy list")
	fmt.Println("  settings proxy add --value <proxy-url>")
	fmt.Println("  settings proxy remove --value <proxy-url> | --index <n>")
}
