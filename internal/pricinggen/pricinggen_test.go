package pricinggen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	awspricing "github.com/aws/aws-sdk-go/service/pricing"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/scorzo/cloudcost/internal/pricing"
)

var now = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func sampleData() AWSData {
	d := make(AWSData)
	d.Add("m6i.xlarge", Spec{Core: 4, Memory: 16}, "us-east-1", "ondemand", 0.192)
	d.Add("m6i.xlarge", Spec{Core: 4, Memory: 16}, "us-east-1", "sp1yr_all", 0.12)
	d.Add("m6i.xlarge", Spec{Core: 4, Memory: 16}, "eu-west-1", "ondemand", 0.214)
	d.Add("m6i.large", Spec{Core: 2, Memory: 8}, "us-west-2", "ondemand", 0.096)
	d.Add("c6i.large", Spec{Core: 2, Memory: 4}, "eu-west-1", "ondemand", 0.1)
	d.Add("t3.micro", Spec{Core: 2, Memory: 1}, "ap-northeast-1", "sp1yr_all", 0.01)
	d.Add("r5.large", Spec{Core: 2, Memory: 16}, "us-east-1", "ondemand", 0.126)
	return d
}

func embeddedRules(t *testing.T) *Rules {
	t.Helper()
	r, err := LoadRules("")
	if err != nil {
		t.Fatalf("failed to load embedded rules: %v", err)
	}
	return r
}

func TestSupports(t *testing.T) {
	r := &Rules{Supported: Supported{Instances: []string{"m6i.*", "c5.large"}}}
	for typ, want := range map[string]bool{
		"m6i.xlarge": true,
		"m6id.large": false,
		"c5.large":   true,
		"c5.xlarge":  false,
	} {
		testboil.FailTestIfDiff(t, r.Supports(typ), want)
	}
	r.Supported.Instances = []string{"*"}
	testboil.FailTestIfDiff(t, r.Supports("anything.goes"), true)
}

func TestPrice(t *testing.T) {
	r := embeddedRules(t)
	t.Run("tier replaces default", func(t *testing.T) {
		testboil.FailTestIfDiff(t, r.Adjustment("m6i.xlarge", "us-east-1", "ondemand"), -25.0)
		testboil.FailTestIfDiff(t, r.Price(0.192, "m6i.xlarge", "us-east-1", "ondemand"), 0.144)
	})
	t.Run("region and family add up", func(t *testing.T) {
		testboil.FailTestIfDiff(t, r.Adjustment("c6i.large", "eu-west-1", "ondemand"), -27.0)
		testboil.FailTestIfDiff(t, r.Price(0.1, "c6i.large", "eu-west-1", "ondemand"), 0.073)
		testboil.FailTestIfDiff(t, r.Adjustment("t3.micro", "ap-northeast-1", "commitment_1yr"), -5.0)
	})
	t.Run("exact region and default", func(t *testing.T) {
		custom := &Rules{Pricing: PricingRules{
			Default:  -10,
			ByRegion: map[string]float64{"eu-west-1": 2},
		}}
		testboil.FailTestIfDiff(t, custom.Adjustment("m5.large", "eu-west-1", "ondemand"), -8.0)
		testboil.FailTestIfDiff(t, custom.Adjustment("m5.large", "eu-central-1", "ondemand"), -10.0)
	})
	t.Run("fixed price wins", func(t *testing.T) {
		custom := *r
		custom.Pricing.FixedPrices = map[string]float64{"m6i.xlarge|us-east-1|ondemand": 0.145}
		testboil.FailTestIfDiff(t, custom.Price(0.192, "m6i.xlarge", "us-east-1", "ondemand"), 0.145)
	})
}

func TestParseRulesValidation(t *testing.T) {
	for name, doc := range map[string]string{
		"no instances": "supported: {regions: [us-east-1], tiers: [ondemand]}\ntier_mapping: {ondemand: ondemand}",
		"unmapped tier": "supported: {instances: ['*'], regions: [us-east-1], tiers: [ondemand]}",
		"bad fixed key": "supported: {instances: ['*'], regions: [us-east-1], tiers: [ondemand]}\n" +
			"tier_mapping: {ondemand: ondemand}\npricing: {fixed_prices: {m5.large: 1}}",
		"not yaml": "supported: [",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRules([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	out := Generate(sampleData(), embeddedRules(t), now)
	testboil.FailTestIfDiff(t, out.Metadata.ConfigSummary.BaseDiscount, "-20%")
	testboil.FailTestIfDiff(t, out.Metadata.GeneratedAt, "2025-01-15T12:00:00Z")
	if _, ok := out.Instances["r5.large"]; ok {
		t.Fatal("unsupported instance in output")
	}
	testboil.FailTestIfDiff(t, len(out.Instances), 4)

	m6i := out.Instances["m6i.xlarge"]
	testboil.FailTestIfDiff(t, m6i.AlternativeName, "standard-4vcpu-16gb")
	testboil.FailTestIfDiff(t, m6i.Specs.VCPU, 4)
	use1 := m6i.Regions["us-east-1"]
	testboil.FailTestIfDiff(t, use1.AlternativeRegion, "us-virginia")
	testboil.FailTestIfDiff(t, use1.AWSPricing["ondemand"], 0.192)
	testboil.FailTestIfDiff(t, use1.AlternativePricing["ondemand"], 0.144)
	testboil.FailTestIfDiff(t, use1.SavingsPct["ondemand"], 25.0)
	testboil.FailTestIfDiff(t, use1.AlternativePricing["commitment_1yr"], 0.102)
	if _, ok := use1.AlternativePricing["commitment_3yr"]; ok {
		t.Fatal("tier without AWS price should be skipped")
	}
	if _, ok := m6i.Regions["us-west-2"]; ok {
		t.Fatal("region without AWS price should be skipped")
	}

	c6i := out.Instances["c6i.large"].Regions["eu-west-1"]
	testboil.FailTestIfDiff(t, c6i.AlternativeRegion, "eu-west-1")
	testboil.FailTestIfDiff(t, c6i.SavingsPct["ondemand"], 27.0)
}

func TestBuildTableLoadsInPricingServer(t *testing.T) {
	var buf bytes.Buffer
	n, err := Render(&buf, FormatTable, sampleData(), embeddedRules(t), now)
	if err != nil {
		t.Fatal(err)
	}
	// t3.micro has no on-demand price
	testboil.FailTestIfDiff(t, n, 3)

	table, err := pricing.Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("generated table does not load: %v", err)
	}
	testboil.FailTestIfDiff(t, table.Metadata.LastUpdated, "2025-01-15")
	rate, ok := table.AlternativePrice("m6i.xlarge")
	testboil.FailTestIfDiff(t, ok, true)
	testboil.FailTestIfDiff(t, rate, 0.144)
	testboil.FailTestIfDiff(t, table.InstanceMapping["m6i.large"], "alt-m6i-large")
	testboil.FailTestIfDiff(t, table.AlternativeCloud["standard-4vcpu-16gb"].SavingsVsAWS, "25%")
	p, ok := table.AWSPrice("m6i.xlarge", "eu-west-1")
	testboil.FailTestIfDiff(t, ok, true)
	testboil.FailTestIfDiff(t, p, 0.214)
	testboil.FailTestIfDiff(t, table.Regions["us-east-1"].Name, "us-virginia")
	testboil.FailTestIfDiff(t, table.IsRegionSupported("ap-northeast-1"), true)

	calc := pricing.NewCalculator(table)
	if calc == nil {
		t.Fatal("expected a calculator")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Render(&buf, "csv", sampleData(), embeddedRules(t), now); err == nil {
		t.Fatal("expected error")
	}
}

type fakeProducts struct {
	pages [][]aws.JSONValue
	err   error
	calls []*awspricing.GetProductsInput
}

func (f *fakeProducts) GetProductsPagesWithContext(ctx aws.Context, input *awspricing.GetProductsInput, fn func(*awspricing.GetProductsOutput, bool) bool, opts ...request.Option) error {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return f.err
	}
	for i, page := range f.pages {
		if !fn(&awspricing.GetProductsOutput{PriceList: page}, i == len(f.pages)-1) {
			break
		}
	}
	return nil
}

func product(t *testing.T, instanceType, region, price string) aws.JSONValue {
	t.Helper()
	doc := `{
		"product": {"attributes": {"instanceType": "` + instanceType + `", "vcpu": "4", "memory": "16 GiB",
			"regionCode": "` + region + `", "networkPerformance": "Up to 12500 Megabit"}},
		"terms": {"OnDemand": {"SKU.JRTCKXETXF": {"priceDimensions": {"SKU.JRTCKXETXF.6YS6EN2CT7": {
			"unit": "Hrs", "pricePerUnit": {"USD": "` + price + `"}}}}}}
	}`
	var v aws.JSONValue
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestFetch(t *testing.T) {
	r := &Rules{
		Supported:   Supported{Instances: []string{"m6i.*"}, Regions: []string{"us-east-1"}, Tiers: []string{"ondemand"}},
		TierMapping: map[string]string{"ondemand": TierOnDemand},
	}
	client := &fakeProducts{pages: [][]aws.JSONValue{
		{product(t, "m6i.xlarge", "us-east-1", "0.1920000000"), product(t, "r5.large", "us-east-1", "0.126")},
		{product(t, "m6i.large", "us-east-1", "0.0000000000")},
	}}
	data, err := NewFetcherWithClient(client).Fetch(context.Background(), r)
	if err != nil {
		t.Fatal(err)
	}
	testboil.FailTestIfDiff(t, len(client.calls), 1)
	testboil.FailTestIfDiff(t, *client.calls[0].ServiceCode, "AmazonEC2")

	inst, ok := data["m6i"]["m6i.xlarge"]
	testboil.FailTestIfDiff(t, ok, true)
	testboil.FailTestIfDiff(t, inst.Spec.Core, 4)
	testboil.FailTestIfDiff(t, inst.Spec.Memory, 16.0)
	testboil.FailTestIfDiff(t, inst.Regions["us-east-1"][TierOnDemand], 0.192)
	if _, ok := data["m6i"]["m6i.large"]; ok {
		t.Fatal("zero price should be skipped")
	}
	if _, ok := data["r5"]; ok {
		t.Fatal("unsupported instance should be skipped")
	}

	client.err = errors.New("AccessDeniedException")
	if _, err := NewFetcherWithClient(client).Fetch(context.Background(), r); err == nil {
		t.Fatal("expected error")
	}
}
