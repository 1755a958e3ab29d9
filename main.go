package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/biosync/cmd"
	"github.com/tphakala/biosync/internal/buildinfo"
	"github.com/tphakala/biosync/internal/conf"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   string
	buildDate string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := &conf.Settings{}
	rootCmd := cmd.RootCommand(settings, buildinfo.NewContext(version, buildDate, ""))
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
