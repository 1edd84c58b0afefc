package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/shutdown"
	"github.com/scorzo/cloudcost/internal"
	"github.com/scorzo/cloudcost/internal/pricinggen"
	"github.com/scorzo/cloudcost/internal/utils"
)

const usage = `pricing-gen - derive alternative cloud prices from AWS EC2 prices

Usage: pricing-gen [flags]

Flags:
  -aws string       AWS data JSON (family -> type -> {spec, regions}). Required unless -fetch.
  -fetch bool       Fetch on-demand prices from the AWS Pricing API instead of reading -aws.
  -endpoint string  Region of the AWS Pricing API endpoint. (default '%v')
  -rules string     Rules YAML. (default: embedded rules)
  -format string    Output format, 'generator' or 'table'. (default 'generator')
  -o string         Output file. (default: stdout)
  -version bool     Print version and exit.

Examples:
  - pricing-gen -aws aws-ec2-data.json
  - pricing-gen -fetch -format table -o pricing.json
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

type config struct {
	awsPath  string
	fetch    bool
	endpoint string
	rules    string
	format   string
	out      string
	version  bool
}

func parseFlags(args []string) (config, error) {
	var c config
	fs := flag.NewFlagSet("pricing-gen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&c.awsPath, "aws", "", "")
	fs.BoolVar(&c.fetch, "fetch", false, "")
	fs.StringVar(&c.endpoint, "endpoint", pricinggen.PricingEndpointRegion, "")
	fs.StringVar(&c.rules, "rules", "", "")
	fs.StringVar(&c.format, "format", pricinggen.FormatGenerator, "")
	fs.StringVar(&c.out, "o", "", "")
	fs.BoolVar(&c.version, "version", false, "")
	if err := fs.Parse(args); err != nil {
		return c, err
	}
	if c.version {
		return c, nil
	}
	if c.fetch == (c.awsPath != "") {
		return c, errors.New("expected exactly one of -aws and -fetch")
	}
	return c, nil
}

func run(args []string, stdout io.Writer) int {
	ancli.SetupSlog()
	if err := utils.LoadDotEnv(); err != nil {
		ancli.Warnf("failed to load .env: %v\n", err)
	}
	c, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stdout, usage, pricinggen.PricingEndpointRegion)
			return 0
		}
		ancli.Errf("%v, see 'pricing-gen -h'\n", err)
		return 1
	}
	if c.version {
		if err := internal.PrintVersion(stdout); err != nil {
			return 1
		}
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { shutdown.Monitor(cancel) }()

	if err := generate(ctx, c, stdout); err != nil {
		ancli.Errf("%v\n", err)
		return 1
	}
	return 0
}

func generate(ctx context.Context, c config, stdout io.Writer) error {
	rules, err := pricinggen.LoadRules(c.rules)
	if err != nil {
		return err
	}
	var data pricinggen.AWSData
	if c.fetch {
		f, err := pricinggen.NewFetcher(c.endpoint)
		if err != nil {
			return err
		}
		data, err = f.Fetch(ctx, rules)
		if err != nil {
			return err
		}
	} else {
		data, err = pricinggen.LoadAWSData(c.awsPath)
		if err != nil {
			return err
		}
	}

	w := stdout
	if c.out != "" {
		f, err := os.Create(c.out)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	n, err := pricinggen.Render(w, c.format, data, rules, time.Now())
	if err != nil {
		return err
	}
	ancli.Okf("generated pricing for %v instance types\n", n)
	return nil
}
