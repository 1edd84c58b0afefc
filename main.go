package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/scorzo/cloudcost/internal"
	"github.com/scorzo/cloudcost/internal/installer"
	"github.com/scorzo/cloudcost/internal/utils"
)

const usage = `cloudcost - compare AWS instance costs with an alternative cloud, conversationally

Prerequisites:
  - Set the ANTHROPIC_API_KEY environment variable to your Anthropic API key,
    or put it in a .env file in the working directory
  - (Optional) Set ANTHROPIC_MODEL to pick the model (default %v)
  - (Optional) Set MCP_SERVER_PATH to the pricing tool server to launch

Usage: cloudcost [flags] [command]

Flags:
  -r, -remote bool     Install the pricing tool server from GitHub instead of using a local one. (default %v)
  -repo string         GitHub repository of the tool server, as owner/repo. (default '%v')
  -branch string       Branch to install the tool server from. (default '%v')
  -server string       Command of the local tool server. (default 'pricing-server' next to this binary, or on PATH)
  -m, -model string    Model to use, overrides ANTHROPIC_MODEL and the config file.
  -plain bool          Use the line based interface even in a terminal. (default %v)
  -h, -help            Display this help message

Commands:
  h|help               Display this help message
  v|version            Print the version and exit

Inside a session:
  help                 Show example questions
  reset, clear         Forget the conversation so far
  quit, exit           Leave

Examples:
  - cloudcost
  - cloudcost -remote
  - echo "3 t3.micro in us-east-1" | cloudcost
  - cloudcost -server "node ./mcp-server/dist/index.js"
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ancli.SetupSlog()
	if err := utils.LoadDotEnv(); err != nil {
		ancli.Warnf("failed to load .env: %v\n", err)
	}

	conf, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			printUsage()
			return 0
		}
		ancli.Errf("%v\n", err)
		return 1
	}
	switch conf.command {
	case "h", "help":
		printUsage()
		return 0
	case "v", "version":
		if err := internal.PrintVersion(os.Stdout); err != nil {
			ancli.Errf("failed to print version: %v\n", err)
			return 1
		}
		return 0
	case "":
	default:
		ancli.Errf("unknown command: '%v', see 'cloudcost help'\n", conf.command)
		return 1
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		ancli.Errf("ANTHROPIC_API_KEY environment variable is not set\n")
		fmt.Fprintf(os.Stderr, "\nPlease create a .env file with your API key:\n  ANTHROPIC_API_KEY=your_api_key_here\n\n")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { shutdown.Monitor(cancel) }()

	err = runSession(ctx, conf)
	if err == nil || errors.Is(err, utils.ErrUserInitiatedExit) {
		if misc.Truthy(os.Getenv("DEBUG")) {
			ancli.Okf("session ended by user\n")
		}
		return 0
	}
	ancli.Errf("%v\n", err)
	return 1
}

func printUsage() {
	fmt.Printf(usage,
		defaultModel(),
		defaultFlags.remote,
		defaultFlags.repo,
		installer.DefaultBranch,
		defaultFlags.plain,
	)
}
