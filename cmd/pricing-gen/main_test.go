package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/scorzo/cloudcost/internal/pricing"
)

const awsData = `{
  "m6i": {
    "m6i.xlarge": {"spec": {"core": 4, "memory": 16}, "regions": {"us-east-1": {"ondemand": 0.192}}}
  },
  "t3": {
    "t3.micro": {"spec": {"core": 2, "memory": 1}, "regions": {"us-east-1": {"ondemand": 0.0104}}}
  }
}`

func writeAWSData(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "aws.json")
	if err := os.WriteFile(p, []byte(awsData), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func Test_goldenFile(t *testing.T) {
	awsPath := writeAWSData(t)
	tcs := []struct {
		expect   string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"help", []string{"-h"}, 0, "Usage: pricing-gen [flags]"},
		{"version", []string{"-version"}, 0, "version: "},
		{"missing input", nil, 1, ""},
		{"both inputs", []string{"-fetch", "-aws", awsPath}, 1, ""},
		{"generator", []string{"-aws", awsPath}, 0, `"alternative_name": "standard-4vcpu-16gb"`},
		{"unknown format", []string{"-aws", awsPath, "-format", "csv"}, 1, ""},
	}
	for _, tc := range tcs {
		t.Run(tc.expect, func(t *testing.T) {
			var out bytes.Buffer
			testboil.FailTestIfDiff(t, run(tc.args, &out), tc.wantCode)
			if tc.wantOut != "" {
				testboil.AssertStringContains(t, out.String(), tc.wantOut)
			}
		})
	}
}

func TestTableOutputFile(t *testing.T) {
	awsPath := writeAWSData(t)
	outPath := filepath.Join(t.TempDir(), "pricing.json")
	var stdout bytes.Buffer
	testboil.FailTestIfDiff(t, run([]string{"-aws", awsPath, "-format", "table", "-o", outPath}, &stdout), 0)
	testboil.FailTestIfDiff(t, stdout.Len(), 0)

	table, err := pricing.Load(outPath)
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, table.IsInstanceSupported("t3.micro"), true)
	rate, _ := table.AlternativePrice("t3.micro")
	// -25 on-demand, +5 for t3
	testboil.FailTestIfDiff(t, rate, 0.0083)
}
