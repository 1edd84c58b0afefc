package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/joho/godotenv"
	"github.com/scorzo/cloudcost/internal"
	"github.com/scorzo/cloudcost/internal/pricing"
)

func main() {
	// stdout carries protocol frames, so every log line goes to stderr
	lvl := slog.LevelInfo
	if misc.Truthy(os.Getenv("DEBUG")) {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	_ = godotenv.Load()

	dataPath := flag.String("data", os.Getenv("PRICING_DATA_PATH"), "Path to a pricing table JSON file. Defaults to the embedded table.")
	version := flag.Bool("version", false, "Print version and exit.")
	flag.Parse()
	if *version {
		fmt.Fprintln(os.Stderr, internal.Version())
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { shutdown.Monitor(cancel) }()
	if err := pricing.ServeStdio(ctx, *dataPath, internal.Version(), os.Stdin, os.Stdout); err != nil {
		slog.Error("fatal error running server", "error", err)
		os.Exit(1)
	}
}
