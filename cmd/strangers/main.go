package main

import (
	"log/slog"
	"os"

	"github.com/BioHazard786/Strangers/internal/cli"
	"github.com/BioHazard786/Strangers/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init(slog.LevelError)
	os.Exit(cli.Execute())
}
