package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

func TestParseMissingSection(t *testing.T) {
	_, err := Parse([]byte(`{"aws_instances": {}, "alternative_cloud": {}, "regions": {}}`))
	if err == nil {
		t.Fatal("expected error")
	}
	testboil.AssertStringContains(t, err.Error(), "missing required key in pricing data: instance_mapping")
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{`)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Parse([]byte(`null`)); err == nil {
		t.Fatal("expected error for null document")
	}
}

func TestLoadFromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "pricing.json")
	err := os.WriteFile(p, []byte(`{
		"metadata": {"version": "2"},
		"aws_instances": {"x.large": {"pricing": {"r-1": 1.5}}},
		"alternative_cloud": {"alt-x": {"hourly_rate": 1}},
		"regions": {"r-1": {"name": "Region one", "available": true}},
		"instance_mapping": {"x.large": "alt-x"}
	}`), 0o644)
	if err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	table, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, table.Metadata.Version, "2")
	price, ok := table.AWSPrice("x.large", "r-1")
	testboil.FailTestIfDiff(t, ok, true)
	testboil.FailTestIfDiff(t, price, 1.5)
	_, ok = table.AWSPrice("x.large", "r-2")
	testboil.FailTestIfDiff(t, ok, false)
	alt, ok := table.AlternativePrice("x.large")
	testboil.FailTestIfDiff(t, ok, true)
	testboil.FailTestIfDiff(t, alt, 1.0)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error")
	}
	testboil.AssertStringContains(t, err.Error(), "failed to load pricing data")
}

func TestEmbeddedTableIsConsistent(t *testing.T) {
	table, err := Load("")
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	for _, typ := range table.SupportedInstances() {
		if _, ok := table.AlternativePrice(typ); !ok {
			t.Errorf("%v has no alternative price", typ)
		}
		for _, region := range table.SupportedRegions() {
			if _, ok := table.AWSPrice(typ, region); !ok {
				t.Errorf("%v has no price in %v", typ, region)
			}
		}
	}
}
