package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/USA-RedDragon/logcapture-server/cmd"
)

//nolint:golint,gochecknoglobals
var (
	version = "dev"
	commit  = "none"
)

func main() {
	rootCmd := cmd.NewCommand(version, commit)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("Encountered an error.", "error", err.Error())
		os.Exit(1)
	}
}
