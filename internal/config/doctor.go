package config

import (
	"path/filepath"
	"strings"

	"smart-ytdl/internal/runstore"
	"smart-ytdl/internal/ytdlp"
)

type DoctorResult struct {
	OK     bool          `json:"ok"`
	Checks []DoctorCheck `json:"checks"`
}

type DoctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func Doctor(configPath string, s Settings) DoctorResult {
	checks := make([]DoctorCheck, 0, 5)
	dep := ytdlp.DependencyStatus()
	checks = append(checks, DoctorCheck{
		Name:    "dependency:yt-dlp",
		OK:      dep.YTDLPFound,
		Message: dependencyMessage(dep.YTDLPFound, dep.YTDLPPath, "yt-dlp"),
	})
	checks = append(checks, DoctorCheck{
		Name:    "dependency:ffmpeg",
		OK:      dep.FFmpegFound,
		Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg"),
	})
	if s.JSRuntime != JSRuntimeAuto {
		_, err := ytdlp.CheckJSRuntime(s.JSRuntime)
		checks = append(checks, DoctorCheck{
			Name:    "dependency:js-runtime",
			OK:      err == nil,
			Message: messageOr(err, s.JSRuntime+" available"),
		})
	}

	err := runstore.CheckWritable(s.DownloadDir)
	checks = append(checks, DoctorCheck{
		Name:    "directory:downloads",
		OK:      err == nil,
		Message: messageOr(err, s.DownloadDir+" writable"),
	})

	cfgDir := filepath.Dir(normalizePath(configPath))
	err = runstore.CheckWritable(cfgDir)
	checks = append(checks, DoctorCheck{
		Name:    "directory:config",
		OK:      err == nil,
		Message: messageOr(err, cfgDir+" writable"),
	})

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return DoctorResult{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func messageOr(err error, okMessage string) string {
	if err != nil {
		return strings.TrimSpace(err.Error())
	}
	return okMessage
}
