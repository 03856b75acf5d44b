package cli

import (
	"fmt"

	"smart-ytdl/internal/version"
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "get":
		return runGet(args[1:])
	case "queue":
		return runQueue(args[1:])
	case "formats":
		return runFormats(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "version", "--version":
		fmt.Printf("ytdownload %s\n", version.Value)
		return nil
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("ytdownload: queued YouTube downloads, one at a time")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  ytdownload get <url>")
	fmt.Println("  ytdownload get -a <url>          audio only (MP3)")
	fmt.Println("  ytdownload get -q 720 <url> ...  cap video height")
	fmt.Println("  ytdownload queue                 interactive queue")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get       look up, queue and download one or more URLs")
	fmt.Println("  queue     interactive queue (paste URL, pick quality, start)")
	fmt.Println("  formats   list the quality choices for a URL")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println("  settings  show/update settings")
	fmt.Println("  version   print the version")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on get/formats/doctor/settings for machine-readable output")
	fmt.Println("  - Flags go before URLs: ytdownload get -a -q 720 <url>")
}
