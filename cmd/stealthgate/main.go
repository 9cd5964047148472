package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"stealthgate/internal/app"
	"stealthgate/internal/shared/config"
	"stealthgate/internal/shared/logger"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "stealthgate.ini")

	// 1. Load the behavior configuration over the defaults.
	cfg := config.Default()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before the logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 2. Initialize the logging system.
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 3. Wire the engine and run.
	server, err := app.New(cfg, *configDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to wire the engine.")
	}
	server.Run()
}
