package pricing

import (
	"fmt"
	"math"
	"strings"
)

const (
	DefaultHoursPerMonth = 730
	MaxHoursPerMonth     = 744
)

type InstanceConfig struct {
	Type          string `json:"type"`
	Quantity      int    `json:"quantity"`
	Region        string `json:"region"`
	HoursPerMonth *int   `json:"hours_per_month,omitempty"`
}

func (c InstanceConfig) hours() int {
	if c.HoursPerMonth == nil {
		return DefaultHoursPerMonth
	}
	return *c.HoursPerMonth
}

type InstanceBreakdown struct {
	InstanceType           string  `json:"instance_type"`
	Quantity               int     `json:"quantity"`
	Region                 string  `json:"region"`
	HoursPerMonth          int     `json:"hours_per_month"`
	AWSHourlyRate          float64 `json:"aws_hourly_rate"`
	AlternativeHourlyRate  float64 `json:"alternative_hourly_rate"`
	AWSMonthlyCost         float64 `json:"aws_monthly_cost"`
	AlternativeMonthlyCost float64 `json:"alternative_monthly_cost"`
	SavingsAmount          float64 `json:"savings_amount"`
	SavingsPercentage      float64 `json:"savings_percentage"`
}

type Comparison struct {
	AWSMonthlyCost         float64             `json:"aws_monthly_cost"`
	AlternativeMonthlyCost float64             `json:"alternative_monthly_cost"`
	SavingsAmount          float64             `json:"savings_amount"`
	SavingsPercentage      float64             `json:"savings_percentage"`
	Breakdown              []InstanceBreakdown `json:"breakdown"`
}

type ComparisonResult struct {
	Comparison      Comparison `json:"comparison"`
	Recommendations []string   `json:"recommendations"`
}

type SupportedInstances struct {
	AWSInstances []string `json:"aws_instances"`
	Regions      []string `json:"regions"`
	Metadata     Metadata `json:"metadata"`
}

type Calculator struct {
	table *Table
}

func NewCalculator(t *Table) *Calculator {
	return &Calculator{table: t}
}

// CalculateInstanceSavings validates every configuration before computing
// anything, so a single bad entry fails the whole comparison.
func (c *Calculator) CalculateInstanceSavings(instances []InstanceConfig) (ComparisonResult, error) {
	if len(instances) == 0 {
		return ComparisonResult{}, fmt.Errorf("At least one instance configuration is required")
	}
	if err := c.validate(instances); err != nil {
		return ComparisonResult{}, err
	}

	breakdowns := make([]InstanceBreakdown, 0, len(instances))
	var totalAWS, totalAlt float64
	for _, inst := range instances {
		b, err := c.breakdown(inst)
		if err != nil {
			return ComparisonResult{}, err
		}
		breakdowns = append(breakdowns, b)
		totalAWS += b.AWSMonthlyCost
		totalAlt += b.AlternativeMonthlyCost
	}

	savings := totalAWS - totalAlt
	pct := savingsPercentage(totalAWS, savings)
	return ComparisonResult{
		Comparison: Comparison{
			AWSMonthlyCost:         round(totalAWS, 2),
			AlternativeMonthlyCost: round(totalAlt, 2),
			SavingsAmount:          round(savings, 2),
			SavingsPercentage:      round(pct, 2),
			Breakdown:              breakdowns,
		},
		Recommendations: Recommend(totalAWS, totalAlt, pct),
	}, nil
}

func (c *Calculator) ListSupportedInstances() SupportedInstances {
	return SupportedInstances{
		AWSInstances: c.table.SupportedInstances(),
		Regions:      c.table.SupportedRegions(),
		Metadata:     c.table.Metadata,
	}
}

func (c *Calculator) validate(instances []InstanceConfig) error {
	for _, inst := range instances {
		if !c.table.IsInstanceSupported(inst.Type) {
			return fmt.Errorf("Unsupported instance type: %v. Supported types: %v",
				inst.Type, strings.Join(c.table.SupportedInstances(), ", "))
		}
		if !c.table.IsRegionSupported(inst.Region) {
			return fmt.Errorf("Unsupported region: %v. Supported regions: %v",
				inst.Region, strings.Join(c.table.SupportedRegions(), ", "))
		}
		if inst.Quantity <= 0 {
			return fmt.Errorf("Quantity must be positive, got %v", inst.Quantity)
		}
		if h := inst.hours(); h < 1 || h > MaxHoursPerMonth {
			return fmt.Errorf("Hours per month must be between 1 and %v, got %v", MaxHoursPerMonth, h)
		}
	}
	return nil
}

func (c *Calculator) breakdown(inst InstanceConfig) (InstanceBreakdown, error) {
	hours := inst.hours()
	awsHourly, ok := c.table.AWSPrice(inst.Type, inst.Region)
	if !ok {
		return InstanceBreakdown{}, fmt.Errorf("Pricing not found for %v in %v", inst.Type, inst.Region)
	}
	altHourly, ok := c.table.AlternativePrice(inst.Type)
	if !ok {
		return InstanceBreakdown{}, fmt.Errorf("Alternative pricing not found for %v", inst.Type)
	}

	awsMonthly := awsHourly * float64(hours) * float64(inst.Quantity)
	altMonthly := altHourly * float64(hours) * float64(inst.Quantity)
	savings := awsMonthly - altMonthly
	return InstanceBreakdown{
		InstanceType:           inst.Type,
		Quantity:               inst.Quantity,
		Region:                 inst.Region,
		HoursPerMonth:          hours,
		AWSHourlyRate:          round(awsHourly, 4),
		AlternativeHourlyRate:  round(altHourly, 4),
		AWSMonthlyCost:         round(awsMonthly, 2),
		AlternativeMonthlyCost: round(altMonthly, 2),
		SavingsAmount:          round(savings, 2),
		SavingsPercentage:      round(savingsPercentage(awsMonthly, savings), 2),
	}, nil
}

func savingsPercentage(awsCost, savings float64) float64 {
	if awsCost == 0 {
		return 0
	}
	return savings / awsCost * 100
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
