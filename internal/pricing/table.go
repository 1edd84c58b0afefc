package pricing

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"golang.org/x/exp/maps"
)

//go:embed data/pricing.json
var defaultTable []byte

type Specs struct {
	VCPU               int     `json:"vcpu"`
	MemoryGB           float64 `json:"memory_gb"`
	NetworkPerformance string  `json:"network_performance"`
}

type InstancePricing struct {
	Specs   Specs              `json:"specs"`
	Pricing map[string]float64 `json:"pricing"`
}

type AlternativeInstance struct {
	ComparableTo []string `json:"comparable_to"`
	Specs        Specs    `json:"specs"`
	HourlyRate   float64  `json:"hourly_rate"`
	SavingsVsAWS string   `json:"savings_vs_aws,omitempty"`
}

type RegionInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

type Metadata struct {
	Version     string `json:"version"`
	LastUpdated string `json:"last_updated"`
	Currency    string `json:"currency"`
	Unit        string `json:"unit"`
	Description string `json:"description,omitempty"`
}

// Table is read-only after Load/Parse and safe for concurrent use.
type Table struct {
	Metadata         Metadata                       `json:"metadata"`
	AWSInstances     map[string]InstancePricing     `json:"aws_instances"`
	AlternativeCloud map[string]AlternativeInstance `json:"alternative_cloud"`
	Regions          map[string]RegionInfo          `json:"regions"`
	InstanceMapping  map[string]string              `json:"instance_mapping"`
}

var requiredSections = []string{"aws_instances", "alternative_cloud", "regions", "instance_mapping"}

// Load the table at path, or the embedded default table if path is empty.
func Load(path string) (*Table, error) {
	if path == "" {
		return Parse(defaultTable)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing data: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Table, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(b, &sections); err != nil {
		return nil, fmt.Errorf("failed to load pricing data: %w", err)
	}
	if sections == nil {
		return nil, fmt.Errorf("failed to load pricing data: pricing data is empty")
	}
	for _, k := range requiredSections {
		if _, ok := sections[k]; !ok {
			return nil, fmt.Errorf("failed to load pricing data: missing required key in pricing data: %v", k)
		}
	}
	var t Table
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("failed to load pricing data: %w", err)
	}
	return &t, nil
}

// AWSPrice returns the hourly on-demand rate of instanceType in region.
func (t *Table) AWSPrice(instanceType, region string) (float64, bool) {
	inst, ok := t.AWSInstances[instanceType]
	if !ok {
		return 0, false
	}
	p, ok := inst.Pricing[region]
	return p, ok
}

// AlternativePrice returns the hourly rate of the alternative instance mapped
// to the AWS instanceType.
func (t *Table) AlternativePrice(instanceType string) (float64, bool) {
	altType, ok := t.InstanceMapping[instanceType]
	if !ok {
		return 0, false
	}
	alt, ok := t.AlternativeCloud[altType]
	if !ok {
		return 0, false
	}
	return alt.HourlyRate, true
}

func (t *Table) Specs(instanceType string) (Specs, bool) {
	inst, ok := t.AWSInstances[instanceType]
	return inst.Specs, ok
}

func (t *Table) IsInstanceSupported(instanceType string) bool {
	_, ok := t.AWSInstances[instanceType]
	return ok
}

func (t *Table) IsRegionSupported(region string) bool {
	_, ok := t.Regions[region]
	return ok
}

// SupportedInstances in lexical order.
func (t *Table) SupportedInstances() []string {
	ret := maps.Keys(t.AWSInstances)
	slices.Sort(ret)
	return ret
}

// SupportedRegions in lexical order.
func (t *Table) SupportedRegions() []string {
	ret := maps.Keys(t.Regions)
	slices.Sort(ret)
	return ret
}
