package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/quest-engine/internal/config"
	"github.com/jwebster45206/quest-engine/internal/content"
	"github.com/jwebster45206/quest-engine/internal/storage"
	"github.com/jwebster45206/quest-engine/pkg/engine"
)

func main() {
	player := flag.String("player", getEnv("QUEST_PLAYER", "player-1"), "player id to play as")
	logPath := flag.String("log", "", "write logs to this file (the terminal belongs to the UI)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var out io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.LogLevel}))

	lib, err := content.Load(cfg.DataDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load content from %s: %v\n", cfg.DataDir, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := storage.Open(ctx, cfg, logger)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not open the %s progress store: %v\n", cfg.Store, err)
		os.Exit(1)
	}
	defer backend.Progress.Close()

	eng := engine.New(lib, backend.Progress, logger).WithLocker(backend.Locker)

	p := tea.NewProgram(NewConsoleUI(eng, *player),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
