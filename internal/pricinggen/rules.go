// Package pricinggen derives alternative cloud prices from AWS EC2 prices
// using a compact set of percentage rules.
package pricinggen

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/rules.yaml
var defaultRules []byte

type Supported struct {
	Instances []string `yaml:"instances"`
	Regions   []string `yaml:"regions"`
	Tiers     []string `yaml:"tiers"`
}

// PricingRules are percent differences to the AWS price.
type PricingRules struct {
	Default          float64            `yaml:"default"`
	ByTier           map[string]float64 `yaml:"by_tier"`
	ByRegion         map[string]float64 `yaml:"by_region"`
	ByInstanceFamily map[string]float64 `yaml:"by_instance_family"`
	// FixedPrices is keyed by "type|region|tier" and holds absolute prices.
	FixedPrices map[string]float64 `yaml:"fixed_prices"`
}

type Naming struct {
	Instances map[string]string `yaml:"instances"`
	Regions   map[string]string `yaml:"regions"`
}

type Rules struct {
	Supported   Supported         `yaml:"supported"`
	TierMapping map[string]string `yaml:"tier_mapping"`
	Pricing     PricingRules      `yaml:"pricing"`
	Naming      Naming            `yaml:"naming"`
}

// LoadRules reads the rules at path, or the embedded defaults if path is
// empty.
func LoadRules(path string) (*Rules, error) {
	b := defaultRules
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules: %w", err)
		}
	}
	return ParseRules(b)
}

func ParseRules(b []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) Validate() error {
	if len(r.Supported.Instances) == 0 {
		return errors.New("rules support no instances")
	}
	if len(r.Supported.Regions) == 0 {
		return errors.New("rules support no regions")
	}
	if len(r.Supported.Tiers) == 0 {
		return errors.New("rules support no tiers")
	}
	for _, tier := range r.Supported.Tiers {
		if _, ok := r.TierMapping[tier]; !ok {
			return fmt.Errorf("tier '%v' has no tier_mapping entry", tier)
		}
	}
	for key := range r.Pricing.FixedPrices {
		if strings.Count(key, "|") != 2 {
			return fmt.Errorf("fixed price key '%v' is not 'type|region|tier'", key)
		}
	}
	return nil
}

// Supports reports if instanceType matches one of the supported patterns.
func (r *Rules) Supports(instanceType string) bool {
	for _, p := range r.Supported.Instances {
		if p == "*" || p == instanceType {
			return true
		}
		if prefix, ok := strings.CutSuffix(p, ".*"); ok && strings.HasPrefix(instanceType, prefix+".") {
			return true
		}
	}
	return false
}

// Adjustment is the total percent difference for an offering, excluding
// fixed prices.
func (r *Rules) Adjustment(instanceType, region, tier string) float64 {
	pct := r.Pricing.Default
	if v, ok := r.Pricing.ByTier[tier]; ok {
		pct = v
	}
	regionPrefix, _, _ := strings.Cut(region, "-")
	if v, ok := r.Pricing.ByRegion[regionPrefix+"-*"]; ok {
		pct += v
	} else if v, ok := r.Pricing.ByRegion[region]; ok {
		pct += v
	}
	if v, ok := r.Pricing.ByInstanceFamily[Family(instanceType)]; ok {
		pct += v
	}
	return pct
}

// Price is the alternative price of an offering priced awsPrice at AWS,
// rounded to 4 decimals.
func (r *Rules) Price(awsPrice float64, instanceType, region, tier string) float64 {
	if v, ok := r.Pricing.FixedPrices[instanceType+"|"+region+"|"+tier]; ok {
		return round(v, 4)
	}
	return round(awsPrice*(1+r.Adjustment(instanceType, region, tier)/100), 4)
}

func (r *Rules) InstanceName(instanceType string) string {
	if n, ok := r.Naming.Instances[instanceType]; ok && n != "" {
		return n
	}
	return instanceType
}

func (r *Rules) RegionName(region string) string {
	if n, ok := r.Naming.Regions[region]; ok && n != "" {
		return n
	}
	return region
}

// Family is "m6i" for "m6i.xlarge".
func Family(instanceType string) string {
	family, _, _ := strings.Cut(instanceType, ".")
	return family
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
