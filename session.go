package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/scorzo/cloudcost/internal"
	"github.com/scorzo/cloudcost/internal/chat"
	"github.com/scorzo/cloudcost/internal/installer"
	"github.com/scorzo/cloudcost/internal/mcp"
	"github.com/scorzo/cloudcost/internal/repl"
	"github.com/scorzo/cloudcost/internal/session"
	"github.com/scorzo/cloudcost/internal/tui"
	"github.com/scorzo/cloudcost/internal/utils"
	"github.com/scorzo/cloudcost/internal/vendors/anthropic"
)

const localServerName = "pricing-server"

func setupClaude(conf flagSet) (*anthropic.Claude, error) {
	configDir, err := utils.ConfigDir()
	if err != nil {
		return nil, err
	}
	claude, err := anthropic.Load(configDir)
	if err != nil {
		return nil, err
	}
	if conf.model != "" {
		claude.Model = conf.model
	}
	return claude, nil
}

// localServer resolves the local tool server command: -server, then
// MCP_SERVER_PATH, then a pricing-server binary next to this one, then PATH.
func localServer(conf flagSet) mcp.ServerConfig {
	cmdLine := conf.server
	if cmdLine == "" {
		cmdLine = os.Getenv("MCP_SERVER_PATH")
	}
	if cmdLine != "" {
		fields := strings.Fields(cmdLine)
		return mcp.ServerConfig{Name: filepath.Base(fields[0]), Command: fields[0], Args: fields[1:]}
	}
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), localServerName)
		if _, err := os.Stat(sibling); !errors.Is(err, fs.ErrNotExist) {
			return mcp.ServerConfig{Name: localServerName, Command: sibling}
		}
	}
	return mcp.ServerConfig{Name: localServerName, Command: localServerName}
}

// resolveServer installs the remote tool server when asked to. Install
// failures end the session, there's no fallback to a local server.
func resolveServer(ctx context.Context, conf flagSet) (mcp.ServerConfig, string, error) {
	if !conf.remote {
		return localServer(conf), "local tool server", nil
	}
	src, err := installer.ParseRepo(conf.repo)
	if err != nil {
		return mcp.ServerConfig{}, "", err
	}
	src.Branch = conf.branch
	ancli.Noticef("installing tool server from GitHub: %v\n", src)
	in, err := installer.New(installer.DefaultDir()).Install(ctx, src)
	if err != nil {
		return mcp.ServerConfig{}, "", err
	}
	return in.ServerConfig(), "tool server from GitHub (" + src.String() + ")", nil
}

func useTUI(conf flagSet) bool {
	return !conf.plain && utils.IsTerminal(os.Stdin) && utils.IsTerminal(os.Stdout)
}

func runSession(ctx context.Context, conf flagSet) error {
	claude, err := setupClaude(conf)
	if err != nil {
		return err
	}
	serverCfg, mode, err := resolveServer(ctx, conf)
	if err != nil {
		return err
	}

	fullscreen := useTUI(conf)
	opts := []mcp.Option{mcp.WithClientInfo("cloudcost", internal.Version())}
	if fullscreen && !misc.Truthy(os.Getenv("DEBUG")) {
		opts = append(opts, mcp.WithStderr(io.Discard))
	}
	mgr := mcp.NewManager(serverCfg, opts...)

	fatal := make(chan error, 1)
	mgr.Subscribe(func(ev mcp.Event) {
		if ev.Kind != mcp.EventUnexpectedExit {
			return
		}
		select {
		case fatal <- ev.Err:
		default:
		}
	})

	if err := mgr.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := mgr.Stop(); err != nil {
			ancli.Warnf("failed to stop tool server: %v\n", err)
		}
	}()

	engine := chat.NewEngine(claude, mgr)
	if fullscreen {
		return tui.Run(ctx, engine, fatal, mode)
	}
	fmt.Print(session.Welcome(mode))
	var replOpts []repl.Option
	replOpts = append(replOpts, repl.WithFatal(fatal))
	if utils.IsTerminal(os.Stdout) {
		replOpts = append(replOpts, repl.WithWidth(utils.TermWidth()))
	}
	return repl.New(engine, os.Stdin, os.Stdout, replOpts...).Run(ctx)
}
