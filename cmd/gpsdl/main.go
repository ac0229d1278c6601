package main

import (
	"log/slog"
	"os"

	"github.com/fly-io/gpsdl/cmd/gpsdl/commands"
)

func main() {
	// Initialize structured logger with text format for readability.
	// The root command replaces it once flags and config are known.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	commands.Execute()
}
