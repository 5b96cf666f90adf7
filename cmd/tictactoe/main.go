package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/application"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/config"
)

// main loads the configuration, builds the logger and serves the game.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	conf := initConfig()
	logger := application.NewLogger(conf, os.Stdout)

	if err := application.RunApp(logger, conf); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}

func initConfig() *config.Config {
	baseDir, err := os.Getwd()
	if err != nil {
		panic(fmt.Errorf("failed to get current directory: %w", err))
	}

	return config.MustLoad(filepath.Join(baseDir, "config.yml"))
}
