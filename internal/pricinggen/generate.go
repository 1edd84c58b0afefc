package pricinggen

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scorzo/cloudcost/internal/pricing"
)

const (
	FormatGenerator = "generator"
	FormatTable     = "table"
)

type ConfigSummary struct {
	Instances    []string `json:"instances"`
	Regions      []string `json:"regions"`
	Tiers        []string `json:"tiers"`
	BaseDiscount string   `json:"base_discount"`
}

type OutputMetadata struct {
	Provider      string        `json:"provider"`
	GeneratedFrom string        `json:"generated_from"`
	GeneratedAt   string        `json:"generated_at"`
	ConfigSummary ConfigSummary `json:"config_summary"`
}

type OutputSpecs struct {
	VCPU     int     `json:"vcpu"`
	MemoryGB float64 `json:"memory_gb"`
}

type RegionPricing struct {
	AlternativeRegion  string             `json:"alternative_region"`
	AWSPricing         map[string]float64 `json:"aws_pricing"`
	AlternativePricing map[string]float64 `json:"alternative_pricing"`
	SavingsPct         map[string]float64 `json:"savings_pct"`
}

type OutputInstance struct {
	AlternativeName string                   `json:"alternative_name"`
	Specs           OutputSpecs              `json:"specs"`
	Regions         map[string]RegionPricing `json:"regions"`
}

type Output struct {
	Metadata  OutputMetadata            `json:"metadata"`
	Instances map[string]OutputInstance `json:"instances"`
}

// Generate prices every supported instance, region and tier present in data.
// Offerings AWS doesn't have are skipped.
func Generate(data AWSData, r *Rules, now time.Time) Output {
	out := Output{
		Metadata: OutputMetadata{
			Provider:      "alternative_cloud",
			GeneratedFrom: "aws_pricing",
			GeneratedAt:   now.UTC().Format(time.RFC3339),
			ConfigSummary: ConfigSummary{
				Instances:    r.Supported.Instances,
				Regions:      r.Supported.Regions,
				Tiers:        r.Supported.Tiers,
				BaseDiscount: fmt.Sprintf("%v%%", r.Pricing.Default),
			},
		},
		Instances: make(map[string]OutputInstance),
	}
	types, found := data.Matching(r)
	for _, t := range types {
		inst := found[t]
		oi := OutputInstance{
			AlternativeName: r.InstanceName(t),
			Specs:           OutputSpecs{VCPU: inst.Spec.Core, MemoryGB: inst.Spec.Memory},
			Regions:         make(map[string]RegionPricing),
		}
		for _, region := range r.Supported.Regions {
			awsTiers, ok := inst.Regions[region]
			if !ok {
				continue
			}
			rp := RegionPricing{
				AlternativeRegion:  r.RegionName(region),
				AWSPricing:         make(map[string]float64),
				AlternativePricing: make(map[string]float64),
				SavingsPct:         make(map[string]float64),
			}
			for _, tier := range r.Supported.Tiers {
				awsPrice, ok := awsTiers[r.TierMapping[tier]]
				if !ok {
					continue
				}
				alt := r.Price(awsPrice, t, region, tier)
				rp.AWSPricing[tier] = round(awsPrice, 4)
				rp.AlternativePricing[tier] = alt
				if awsPrice > 0 {
					rp.SavingsPct[tier] = round((awsPrice-alt)/awsPrice*100, 2)
				}
			}
			oi.Regions[region] = rp
		}
		out.Instances[t] = oi
	}
	return out
}

// onDemandTier is the supported tier mapped to AWS on-demand prices.
func (r *Rules) onDemandTier() (string, error) {
	for _, tier := range r.Supported.Tiers {
		if r.TierMapping[tier] == TierOnDemand {
			return tier, nil
		}
	}
	return "", errors.New("no supported tier maps to on-demand prices")
}

// BuildTable turns the on-demand prices into a table the pricing server can
// load. The alternative rate of an instance is its price in the first
// supported region AWS offers it in.
func BuildTable(data AWSData, r *Rules, now time.Time) (*pricing.Table, error) {
	tier, err := r.onDemandTier()
	if err != nil {
		return nil, err
	}
	table := &pricing.Table{
		Metadata: pricing.Metadata{
			Version:     "generated",
			LastUpdated: now.UTC().Format("2006-01-02"),
			Currency:    "USD",
			Unit:        "hourly",
			Description: fmt.Sprintf("AWS EC2 on-demand Linux pricing with alternative cloud pricing at %v%% base adjustment", r.Pricing.Default),
		},
		AWSInstances:     make(map[string]pricing.InstancePricing),
		AlternativeCloud: make(map[string]pricing.AlternativeInstance),
		Regions:          make(map[string]pricing.RegionInfo),
		InstanceMapping:  make(map[string]string),
	}
	for _, region := range r.Supported.Regions {
		table.Regions[region] = pricing.RegionInfo{Name: r.RegionName(region), Available: true}
	}

	types, found := data.Matching(r)
	for _, t := range types {
		inst := found[t]
		specs := pricing.Specs{VCPU: inst.Spec.Core, MemoryGB: inst.Spec.Memory, NetworkPerformance: inst.Spec.Network}
		prices := make(map[string]float64)
		var altRate, awsRef float64
		for _, region := range r.Supported.Regions {
			p, ok := inst.Regions[region][TierOnDemand]
			if !ok || p <= 0 {
				continue
			}
			prices[region] = round(p, 4)
			if awsRef == 0 {
				awsRef = p
				altRate = r.Price(p, t, region, tier)
			}
		}
		if len(prices) == 0 {
			continue
		}
		table.AWSInstances[t] = pricing.InstancePricing{Specs: specs, Pricing: prices}

		name := altName(r, t)
		table.InstanceMapping[t] = name
		if existing, ok := table.AlternativeCloud[name]; ok {
			existing.ComparableTo = append(existing.ComparableTo, t)
			table.AlternativeCloud[name] = existing
			continue
		}
		table.AlternativeCloud[name] = pricing.AlternativeInstance{
			ComparableTo: []string{t},
			Specs:        specs,
			HourlyRate:   altRate,
			SavingsVsAWS: fmt.Sprintf("%.0f%%", (awsRef-altRate)/awsRef*100),
		}
	}
	if len(table.AWSInstances) == 0 {
		return nil, errors.New("no supported instance has on-demand prices in a supported region")
	}
	return table, nil
}

// altName is the custom name of t, or "alt-" plus t with dots dashed.
func altName(r *Rules, t string) string {
	if n := r.InstanceName(t); n != t {
		return n
	}
	return "alt-" + strings.ReplaceAll(t, ".", "-")
}
