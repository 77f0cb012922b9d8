package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/usagipass/migration-tools/cmd"
	"github.com/usagipass/migration-tools/internal/buildinfo"
	"github.com/usagipass/migration-tools/internal/conf"
	"github.com/usagipass/migration-tools/internal/logger"
)

// Injected with -ldflags "-X main.version=... -X main.buildDate=... -X main.commit=..."
var (
	version   string
	buildDate string
	commit    string
)

func main() {
	os.Exit(run())
}

func run() int {
	// SIGINT/SIGTERM cancel the run; the unit in progress rolls back
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, buildinfo.NewContext(version, buildDate, commit))

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Global().Close()
	if err != nil {
		return 1
	}
	return 0
}
