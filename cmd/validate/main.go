package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jwebster45206/quest-engine/internal/content"
)

func main() {
	dataDir := flag.String("data", "./data", "content directory holding quests/, recipes/, items.* and characters.*")
	verbose := flag.Bool("v", false, "log each file as it loads")
	flag.Parse()

	level := slog.LevelError
	var out io.Writer = io.Discard
	if *verbose {
		level = slog.LevelDebug
		out = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	fmt.Printf("Validating %s...\n", *dataDir)

	lib, err := content.Load(*dataDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		os.Exit(1)
	}

	problems := lib.Validate()
	quests, recipes, items, characters := lib.Counts()
	fmt.Printf("Loaded %d quests, %d recipes, %d items, %d characters\n", quests, recipes, items, characters)

	if len(problems) > 0 {
		fmt.Fprintf(os.Stderr, "Validation failed with %d problem(s):\n", len(problems))
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "  - %s\n", p)
		}
		os.Exit(1)
	}

	fmt.Println("Content is valid!")
}
