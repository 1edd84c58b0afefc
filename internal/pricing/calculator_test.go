package pricing

import (
	"math"
	"strings"
	"testing"

	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

func testCalculator(t *testing.T) *Calculator {
	t.Helper()
	table, err := Load("")
	if err != nil {
		t.Fatalf("failed to load embedded table: %v", err)
	}
	return NewCalculator(table)
}

func TestCalculateInstanceSavings_t3Micro(t *testing.T) {
	c := testCalculator(t)
	got, err := c.CalculateInstanceSavings([]InstanceConfig{
		{Type: "t3.micro", Quantity: 3, Region: "us-east-1", HoursPerMonth: misc.Pointer(730)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmp := got.Comparison
	testboil.FailTestIfDiff(t, cmp.AWSMonthlyCost, 22.78)
	testboil.FailTestIfDiff(t, cmp.AlternativeMonthlyCost, 18.18)
	// 22.78 - 18.18
	testboil.FailTestIfDiff(t, cmp.SavingsAmount, 4.6)
	testboil.FailTestIfDiff(t, cmp.SavingsPercentage, 20.19)

	testboil.FailTestIfDiff(t, len(cmp.Breakdown), 1)
	b := cmp.Breakdown[0]
	testboil.FailTestIfDiff(t, b.AWSHourlyRate, 0.0104)
	testboil.FailTestIfDiff(t, b.AlternativeHourlyRate, 0.0083)
	testboil.FailTestIfDiff(t, b.HoursPerMonth, 730)

	testboil.FailTestIfDiff(t, len(got.Recommendations), 2)
	testboil.AssertStringContains(t, got.Recommendations[0], "$55.20 annually")
	testboil.AssertStringContains(t, got.Recommendations[1], "dev/staging")
}

func TestCalculateInstanceSavings_totalsRoundedLineItems(t *testing.T) {
	c := testCalculator(t)
	item := InstanceConfig{Type: "t3.micro", Quantity: 1, Region: "us-east-1", HoursPerMonth: misc.Pointer(5)}
	got, err := c.CalculateInstanceSavings([]InstanceConfig{item, item, item})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmp := got.Comparison
	// 0.052 and 0.0415 per line, each rounded before totalling
	testboil.FailTestIfDiff(t, cmp.Breakdown[0].AWSMonthlyCost, 0.05)
	testboil.FailTestIfDiff(t, cmp.Breakdown[0].AlternativeMonthlyCost, 0.04)
	testboil.FailTestIfDiff(t, cmp.AWSMonthlyCost, 0.15)
	testboil.FailTestIfDiff(t, cmp.AlternativeMonthlyCost, 0.12)
	testboil.FailTestIfDiff(t, cmp.SavingsAmount, 0.03)
	testboil.FailTestIfDiff(t, cmp.SavingsPercentage, 20.0)
}

func TestCalculateInstanceSavings_defaultsHours(t *testing.T) {
	c := testCalculator(t)
	got, err := c.CalculateInstanceSavings([]InstanceConfig{
		{Type: "m5.large", Quantity: 1, Region: "us-west-2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, got.Comparison.Breakdown[0].HoursPerMonth, DefaultHoursPerMonth)
	testboil.FailTestIfDiff(t, got.Comparison.AWSMonthlyCost, 70.08)
}

func TestCalculateInstanceSavings_validation(t *testing.T) {
	c := testCalculator(t)
	tests := []struct {
		name    string
		in      InstanceConfig
		wantErr string
	}{
		{
			name:    "zero quantity",
			in:      InstanceConfig{Type: "t3.micro", Quantity: 0, Region: "us-east-1"},
			wantErr: "Quantity must be positive, got 0",
		},
		{
			name:    "unsupported region",
			in:      InstanceConfig{Type: "t3.micro", Quantity: 1, Region: "ap-south-1"},
			wantErr: "Unsupported region: ap-south-1. Supported regions: eu-west-1, us-east-1, us-west-2",
		},
		{
			name:    "unsupported type",
			in:      InstanceConfig{Type: "p4d.24xlarge", Quantity: 1, Region: "us-east-1"},
			wantErr: "Unsupported instance type: p4d.24xlarge. Supported types: c5.large",
		},
		{
			name:    "too many hours",
			in:      InstanceConfig{Type: "t3.micro", Quantity: 1, Region: "us-east-1", HoursPerMonth: misc.Pointer(745)},
			wantErr: "Hours per month must be between 1 and 744, got 745",
		},
		{
			name:    "zero hours",
			in:      InstanceConfig{Type: "t3.micro", Quantity: 1, Region: "us-east-1", HoursPerMonth: misc.Pointer(0)},
			wantErr: "Hours per month must be between 1 and 744, got 0",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.CalculateInstanceSavings([]InstanceConfig{tc.in})
			if err == nil {
				t.Fatal("expected error")
			}
			testboil.AssertStringContains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestCalculateInstanceSavings_empty(t *testing.T) {
	_, err := testCalculator(t).CalculateInstanceSavings(nil)
	if err == nil {
		t.Fatal("expected error for empty instance list")
	}
}

func TestCalculateInstanceSavings_costMatchesRate(t *testing.T) {
	c := testCalculator(t)
	supported := c.ListSupportedInstances()
	for _, typ := range supported.AWSInstances {
		for _, region := range supported.Regions {
			for _, hours := range []int{1, 365, 730, 744} {
				got, err := c.CalculateInstanceSavings([]InstanceConfig{
					{Type: typ, Quantity: 2, Region: region, HoursPerMonth: misc.Pointer(hours)},
				})
				if err != nil {
					t.Fatalf("%v/%v/%v: unexpected error: %v", typ, region, hours, err)
				}
				rate, _ := c.table.AWSPrice(typ, region)
				want := rate * float64(hours) * 2
				if math.Abs(got.Comparison.AWSMonthlyCost-want) > 0.005+1e-9 {
					t.Fatalf("%v/%v/%v: aws cost %v, want ~%v", typ, region, hours, got.Comparison.AWSMonthlyCost, want)
				}
			}
		}
	}
}

func TestCalculateInstanceSavings_zeroAWSCost(t *testing.T) {
	table, err := Parse([]byte(`{
		"aws_instances": {"free.nano": {"specs": {}, "pricing": {"us-east-1": 0}}},
		"alternative_cloud": {"alt-nano": {"hourly_rate": 0.001}},
		"regions": {"us-east-1": {"name": "US East", "available": true}},
		"instance_mapping": {"free.nano": "alt-nano"}
	}`))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	got, err := NewCalculator(table).CalculateInstanceSavings([]InstanceConfig{
		{Type: "free.nano", Quantity: 1, Region: "us-east-1"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testboil.FailTestIfDiff(t, got.Comparison.SavingsPercentage, 0.0)
	testboil.FailTestIfDiff(t, got.Comparison.Breakdown[0].SavingsPercentage, 0.0)
	testboil.AssertStringContains(t, got.Recommendations[0], "competitive")
}

func TestRecommend(t *testing.T) {
	tests := []struct {
		name     string
		aws, alt float64
		pct      float64
		want     []string
	}{
		{"none", 100, 100, 0, []string{"competitive"}},
		{"moderate", 100, 90, 10, []string{"annually", "Moderate"}},
		{"significant", 100, 75, 25, []string{"annually", "Significant"}},
		{"high", 100, 60, 40, []string{"annually", "High savings"}},
		{"large", 2000, 1000, 50, []string{"annually", "High savings", "phased migration"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Recommend(tc.aws, tc.alt, tc.pct)
			testboil.FailTestIfDiff(t, len(got), len(tc.want))
			for i, w := range tc.want {
				testboil.AssertStringContains(t, got[i], w)
			}
		})
	}
}

func TestListSupportedInstances(t *testing.T) {
	got := testCalculator(t).ListSupportedInstances()
	testboil.FailTestIfDiff(t, strings.Join(got.Regions, ","), "eu-west-1,us-east-1,us-west-2")
	testboil.FailTestIfDiff(t, len(got.AWSInstances), 8)
	testboil.FailTestIfDiff(t, got.Metadata.Currency, "USD")
}
