package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"smart-ytdl/internal/config"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "settings file path")
	outputDir := fs.String("output-dir", "", "download directory override")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := config.Load(strings.TrimSpace(*configPath))
	if err != nil {
		return err
	}
	if dir := strings.TrimSpace(*outputDir); dir != "" {
		s.DownloadDir = dir
	}
	res := config.Doctor(strings.TrimSpace(*configPath), s)
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
		if !res.OK {
			return errors.New("doctor checks failed")
		}
		return nil
	}

	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("doctor: all checks passed")
	return nil
}
