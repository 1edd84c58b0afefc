package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/scorzo/cloudcost/internal/installer"
	"github.com/scorzo/cloudcost/internal/vendors/anthropic"
)

type flagSet struct {
	remote  bool
	repo    string
	branch  string
	server  string
	model   string
	plain   bool
	command string
}

var defaultFlags = flagSet{
	repo:   "scorzo/cloud-cost-calculator-mcp",
	branch: installer.DefaultBranch,
}

func defaultModel() string {
	return anthropic.DefaultModel
}

func parseFlags(args []string) (flagSet, error) {
	conf := defaultFlags
	fs := flag.NewFlagSet("cloudcost", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.BoolVar(&conf.remote, "r", defaultFlags.remote, "")
	fs.BoolVar(&conf.remote, "remote", defaultFlags.remote, "")
	fs.StringVar(&conf.repo, "repo", defaultFlags.repo, "")
	fs.StringVar(&conf.branch, "branch", defaultFlags.branch, "")
	fs.StringVar(&conf.server, "server", defaultFlags.server, "")
	fs.StringVar(&conf.model, "m", defaultFlags.model, "")
	fs.StringVar(&conf.model, "model", defaultFlags.model, "")
	fs.BoolVar(&conf.plain, "plain", defaultFlags.plain, "")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return conf, err
		}
		return conf, fmt.Errorf("failed to parse flags: %w", err)
	}
	switch fs.NArg() {
	case 0:
	case 1:
		conf.command = fs.Arg(0)
	default:
		return conf, fmt.Errorf("expected at most one command, got: %v", fs.Args())
	}
	if conf.remote && conf.server != "" {
		return conf, fmt.Errorf("flags -remote and -server are mutually exclusive")
	}
	return conf, nil
}
