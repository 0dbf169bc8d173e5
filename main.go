package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/epalmerini/camelhole/internal/config"
	"github.com/epalmerini/camelhole/internal/tui"
	"github.com/epalmerini/camelhole/internal/xdg"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Show version")
	profile := flag.String("profile", "", "Connection profile from config.toml")
	integration := flag.String("integration", "", "Integration to trace (skips the browser)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("camelhole %s\n", version)
		return
	}

	configDir, err := xdg.Dir("XDG_CONFIG_HOME", ".config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving config directory: %v\n", err)
		os.Exit(1)
	}

	fileCfg, err := config.LoadFileConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := tui.Run(fileCfg, configDir, *profile, *integration); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
