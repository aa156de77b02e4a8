// Package catalog resolves on-demand EC2 instance prices from the AWS
// Pricing API and serves them over HTTP to the in-cluster agent.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
)

// pricingEndpointRegion hosts the Pricing API. The API is only available in
// a handful of regions regardless of which region is being priced.
const pricingEndpointRegion = "us-east-1"

// PricingAPI abstracts the AWS Pricing client for testability.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// InstancePrice is a resolved on-demand price for one instance type in one
// region. Figures are rounded to 4 decimal places.
type InstancePrice struct {
	InstanceCostPerHour float64 `json:"instance_cost_per_hour"`
	CostPerVCPUHour     float64 `json:"cost_per_vcpu_per_hour"`
	VCPUCount           int     `json:"vcpu_count"`
}

// Catalog answers instance price lookups against the Pricing API.
type Catalog struct {
	api PricingAPI
}

// NewCatalog creates a Catalog over the given API abstraction.
func NewCatalog(api PricingAPI) *Catalog {
	return &Catalog{api: api}
}

// NewCatalogFromEnv creates a Catalog using the ambient AWS credential chain.
func NewCatalogFromEnv(ctx context.Context) (*Catalog, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(pricingEndpointRegion))
	if err != nil {
		return nil, fmt.Errorf("catalog: loading AWS config: %w", err)
	}
	return NewCatalog(pricing.NewFromConfig(cfg)), nil
}

// priceListEntry is the subset of a Pricing API product document we read.
type priceListEntry struct {
	Product struct {
		Attributes struct {
			VCPU string `json:"vcpu"`
		} `json:"attributes"`
	} `json:"product"`
	Terms struct {
		OnDemand map[string]struct {
			PriceDimensions map[string]struct {
				PricePerUnit struct {
					USD string `json:"USD"`
				} `json:"pricePerUnit"`
			} `json:"priceDimensions"`
		} `json:"OnDemand"`
	} `json:"terms"`
}

// LookupInstancePrice queries the on-demand price for a shared-tenancy,
// in-use compute instance. The per-vCPU figure divides the hourly price by
// the instance's vCPU count.
func (c *Catalog) LookupInstancePrice(ctx context.Context, region, instanceType, operatingSystem string) (InstancePrice, error) {
	location, err := RegionDisplayName(region)
	if err != nil {
		return InstancePrice{}, err
	}

	filters := []types.Filter{
		{Type: types.FilterTypeTermMatch, Field: aws.String("location"), Value: aws.String(location)},
		{Type: types.FilterTypeTermMatch, Field: aws.String("instanceType"), Value: aws.String(instanceType)},
		{Type: types.FilterTypeTermMatch, Field: aws.String("operatingSystem"), Value: aws.String(operatingSystem)},
		{Type: types.FilterTypeTermMatch, Field: aws.String("capacitystatus"), Value: aws.String("Used")},
		{Type: types.FilterTypeTermMatch, Field: aws.String("locationType"), Value: aws.String("AWS Region")},
		{Type: types.FilterTypeTermMatch, Field: aws.String("productFamily"), Value: aws.String("Compute Instance")},
		{Type: types.FilterTypeTermMatch, Field: aws.String("operation"), Value: aws.String("RunInstances")},
		{Type: types.FilterTypeTermMatch, Field: aws.String("tenancy"), Value: aws.String("Shared")},
	}

	out, err := c.api.GetProducts(ctx, &pricing.GetProductsInput{
		ServiceCode:   aws.String("AmazonEC2"),
		Filters:       filters,
		FormatVersion: aws.String("aws_v1"),
	})
	if err != nil {
		return InstancePrice{}, fmt.Errorf("catalog: pricing query: %w", err)
	}
	if len(out.PriceList) == 0 {
		return InstancePrice{}, fmt.Errorf("catalog: no pricing data for %s/%s/%s", region, instanceType, operatingSystem)
	}

	var entry priceListEntry
	if err := json.Unmarshal([]byte(out.PriceList[0]), &entry); err != nil {
		return InstancePrice{}, fmt.Errorf("catalog: decoding price list: %w", err)
	}

	vcpus, err := strconv.Atoi(entry.Product.Attributes.VCPU)
	if err != nil || vcpus <= 0 {
		return InstancePrice{}, fmt.Errorf("catalog: unable to determine vCPU count for %s", instanceType)
	}

	for _, term := range entry.Terms.OnDemand {
		for _, dim := range term.PriceDimensions {
			hourly, err := strconv.ParseFloat(dim.PricePerUnit.USD, 64)
			if err != nil {
				return InstancePrice{}, fmt.Errorf("catalog: parsing price %q: %w", dim.PricePerUnit.USD, err)
			}
			price := InstancePrice{
				InstanceCostPerHour: round4(hourly),
				CostPerVCPUHour:     round4(hourly / float64(vcpus)),
				VCPUCount:           vcpus,
			}
			slog.Debug("resolved instance price",
				"region", region, "instance_type", instanceType, "os", operatingSystem,
				"hourly", price.InstanceCostPerHour, "vcpus", vcpus)
			return price, nil
		}
	}
	return InstancePrice{}, fmt.Errorf("catalog: no on-demand price dimension for %s", instanceType)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
