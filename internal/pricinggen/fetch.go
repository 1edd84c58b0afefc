package pricinggen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/pricing"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

// PricingEndpointRegion is where the AWS Pricing API is served from.
const PricingEndpointRegion = "us-east-1"

// ProductLister is the part of the AWS Pricing client the fetcher uses.
type ProductLister interface {
	GetProductsPagesWithContext(ctx aws.Context, input *pricing.GetProductsInput, fn func(*pricing.GetProductsOutput, bool) bool, opts ...request.Option) error
}

type Fetcher struct {
	client ProductLister
	debug  bool
}

// NewFetcher creates a fetcher using the default AWS credential chain.
func NewFetcher(endpointRegion string) (*Fetcher, error) {
	if endpointRegion == "" {
		endpointRegion = PricingEndpointRegion
	}
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(endpointRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to establish AWS session: %w", err)
	}
	return NewFetcherWithClient(pricing.New(sess)), nil
}

func NewFetcherWithClient(client ProductLister) *Fetcher {
	return &Fetcher{
		client: client,
		debug:  misc.Truthy(os.Getenv("DEBUG")),
	}
}

type priceListItem struct {
	Product struct {
		Attributes struct {
			InstanceType       string `json:"instanceType"`
			VCPU               string `json:"vcpu"`
			Memory             string `json:"memory"`
			RegionCode         string `json:"regionCode"`
			NetworkPerformance string `json:"networkPerformance"`
		} `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				PricePerUnit map[string]string `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

func filter(field, value string) *pricing.Filter {
	return &pricing.Filter{
		Type:  aws.String(pricing.FilterTypeTermMatch),
		Field: aws.String(field),
		Value: aws.String(value),
	}
}

// Fetch collects on-demand Linux prices of the supported instances in every
// supported region.
func (f *Fetcher) Fetch(ctx context.Context, r *Rules) (AWSData, error) {
	data := make(AWSData)
	for _, region := range r.Supported.Regions {
		n, err := f.fetchRegion(ctx, r, region, data)
		if err != nil {
			return nil, err
		}
		ancli.Noticef("fetched %v on-demand prices in %v\n", n, region)
	}
	return data, nil
}

func (f *Fetcher) fetchRegion(ctx context.Context, r *Rules, region string, data AWSData) (int, error) {
	input := &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		FormatVersion: aws.String("aws_v1"),
		MaxResults:    aws.Int64(100),
		Filters: []*pricing.Filter{
			filter("regionCode", region),
			filter("operatingSystem", "Linux"),
			filter("tenancy", "Shared"),
			filter("preInstalledSw", "NA"),
			filter("capacitystatus", "Used"),
			filter("licenseModel", "No License required"),
		},
	}
	count := 0
	var parseErr error
	err := f.client.GetProductsPagesWithContext(ctx, input, func(page *pricing.GetProductsOutput, lastPage bool) bool {
		if f.debug {
			ancli.Noticef("%v: page of %v products, last: %v\n", region, len(page.PriceList), lastPage)
		}
		for _, raw := range page.PriceList {
			added, err := addPriceListItem(raw, r, region, data)
			if err != nil {
				parseErr = err
				return false
			}
			if added {
				count++
			}
		}
		return true
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			return 0, fmt.Errorf("failed to get products in %v: %v: %v", region, aerr.Code(), aerr.Message())
		}
		return 0, fmt.Errorf("failed to get products in %v: %w", region, err)
	}
	if parseErr != nil {
		return 0, parseErr
	}
	return count, nil
}

func addPriceListItem(raw aws.JSONValue, r *Rules, region string, data AWSData) (bool, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return false, fmt.Errorf("failed to encode price list item: %w", err)
	}
	var item priceListItem
	if err := json.Unmarshal(b, &item); err != nil {
		return false, fmt.Errorf("failed to decode price list item: %w", err)
	}
	attrs := item.Product.Attributes
	if attrs.InstanceType == "" || !r.Supports(attrs.InstanceType) {
		return false, nil
	}
	price, ok := onDemandUSD(item)
	if !ok {
		return false, nil
	}
	spec := Spec{
		Core:    parseVCPU(attrs.VCPU),
		Memory:  parseMemory(attrs.Memory),
		Network: attrs.NetworkPerformance,
	}
	if attrs.RegionCode != "" {
		region = attrs.RegionCode
	}
	data.Add(attrs.InstanceType, spec, region, TierOnDemand, price)
	return true, nil
}

// onDemandUSD is the first non-zero hourly USD price of the item.
func onDemandUSD(item priceListItem) (float64, bool) {
	for _, term := range item.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			v, err := strconv.ParseFloat(dim.PricePerUnit["USD"], 64)
			if err == nil && v > 0 {
				return v, true
			}
		}
	}
	return 0, false
}

func parseVCPU(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}

// parseMemory reads "16 GiB" as 16.
func parseMemory(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "GiB"))
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return v
}
