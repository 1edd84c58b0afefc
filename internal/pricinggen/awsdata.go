package pricinggen

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"golang.org/x/exp/maps"
)

// TierOnDemand is the AWS tier key of on-demand prices.
const TierOnDemand = "ondemand"

type Spec struct {
	Core    int     `json:"core"`
	Memory  float64 `json:"memory"`
	Network string  `json:"network,omitempty"`
}

type AWSInstance struct {
	Spec Spec `json:"spec"`
	// Regions maps region -> AWS tier -> hourly price.
	Regions map[string]map[string]float64 `json:"regions"`
}

// AWSData maps family -> instance type -> instance.
type AWSData map[string]map[string]AWSInstance

func LoadAWSData(path string) (AWSData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AWS data: %w", err)
	}
	var d AWSData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("failed to parse AWS data: %w", err)
	}
	return d, nil
}

// Add records the price of instanceType in region for tier.
func (d AWSData) Add(instanceType string, spec Spec, region, tier string, price float64) {
	family := Family(instanceType)
	if d[family] == nil {
		d[family] = make(map[string]AWSInstance)
	}
	inst, ok := d[family][instanceType]
	if !ok {
		inst = AWSInstance{Spec: spec, Regions: make(map[string]map[string]float64)}
	}
	if inst.Regions[region] == nil {
		inst.Regions[region] = make(map[string]float64)
	}
	inst.Regions[region][tier] = price
	d[family][instanceType] = inst
}

// Matching returns the sorted instance types supported by the rules.
func (d AWSData) Matching(r *Rules) ([]string, map[string]AWSInstance) {
	found := make(map[string]AWSInstance)
	for _, instances := range d {
		for t, inst := range instances {
			if r.Supports(t) {
				found[t] = inst
			}
		}
	}
	types := maps.Keys(found)
	slices.Sort(types)
	return types, found
}
