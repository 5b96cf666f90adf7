package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/gdamore/tcell/v2"

	"github.com/jaminalder/timetravel-tic-tac-toe/internal/application"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/config"
	"github.com/jaminalder/timetravel-tic-tac-toe/internal/term"
)

var (
	configPath = flag.String("config", "config.yml", "Path to the config file")
	logPath    = flag.String("log", "", "Write logs to this file instead of discarding them")
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()
	flag.Parse()

	conf := config.MustLoad(*configPath)

	// the screen owns stdout
	var out io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			panic(fmt.Errorf("failed to open log file: %w", err))
		}
		defer f.Close()
		out = f
	}
	logger := application.NewLogger(conf, out)

	screen, err := tcell.NewScreen()
	if err != nil {
		panic(fmt.Errorf("failed to create screen: %w", err))
	}
	if err = screen.Init(); err != nil {
		panic(fmt.Errorf("failed to init screen: %w", err))
	}
	screen.EnableMouse()

	runErr := term.New(screen, logger).Run()
	screen.Fini()
	if runErr != nil {
		panic(fmt.Errorf("terminal run failed: %w", runErr))
	}
}
