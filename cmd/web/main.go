package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/scorzo/cloudcost/internal"
	"github.com/scorzo/cloudcost/internal/installer"
	"github.com/scorzo/cloudcost/internal/mcp"
	"github.com/scorzo/cloudcost/internal/utils"
	"github.com/scorzo/cloudcost/internal/vendors/anthropic"
	"github.com/scorzo/cloudcost/internal/web"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ancli.SetupSlog()
	if err := utils.LoadDotEnv(); err != nil {
		ancli.Warnf("failed to load .env: %v\n", err)
	}

	fs := flag.NewFlagSet("cloudcost-web", flag.ContinueOnError)
	port := fs.String("port", utils.EnvOr("PORT", "3001"), "Port to listen on.")
	origin := fs.String("origin", utils.EnvOr("FRONTEND_ORIGIN", "*"), "Origin allowed to call the API.")
	installDir := fs.String("install-dir", installer.DefaultDir(), "Where tool servers from GitHub are installed.")
	version := fs.Bool("version", false, "Print version and exit.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if *version {
		if err := internal.PrintVersion(os.Stdout); err != nil {
			return 1
		}
		return 0
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		ancli.Errf("ANTHROPIC_API_KEY environment variable is not set\n")
		return 1
	}
	configDir, err := utils.ConfigDir()
	if err != nil {
		ancli.Errf("%v\n", err)
		return 1
	}
	claude, err := anthropic.Load(configDir)
	if err != nil {
		ancli.Errf("%v\n", err)
		return 1
	}
	ancli.Okf("using model: %v\n", claude.Model)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { shutdown.Monitor(cancel) }()

	if err := serve(ctx, claude, net.JoinHostPort("", *port), *origin, *installDir); err != nil {
		ancli.Errf("%v\n", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, claude *anthropic.Claude, addr, origin, installDir string) error {
	mgr := mcp.NewManager(mcp.ServerConfig{}, mcp.WithClientInfo("cloudcost-web", internal.Version()))
	srv := web.New(ctx, claude, mgr, installer.New(installDir), web.WithOrigin(origin))
	if err := srv.StartJobs(); err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		ancli.Okf("server running on http://localhost%v\n", addr)
		if misc.Truthy(os.Getenv("DEBUG")) {
			ancli.Noticef("installing tool servers into: %v\n", installDir)
		}
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		srv.Close()
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	ancli.Noticef("shutting down server...\n")
	if err := srv.Close(); err != nil {
		ancli.Warnf("failed to stop tool server: %v\n", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	ancli.Okf("server closed\n")
	return nil
}
