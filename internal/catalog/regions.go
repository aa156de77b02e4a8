package catalog

import "fmt"

// regionDisplayNames maps short region codes to the location display names
// the pricing API filters on. The API does not accept region codes directly.
var regionDisplayNames = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-west-3":      "EU (Paris)",
	"eu-central-1":   "EU (Frankfurt)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-northeast-2": "Asia Pacific (Seoul)",
	"ap-northeast-3": "Asia Pacific (Osaka)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"sa-east-1":      "South America (Sao Paulo)",
	"ca-central-1":   "Canada (Central)",
	"us-gov-west-1":  "AWS GovCloud (US-West)",
	"us-gov-east-1":  "AWS GovCloud (US-East)",
	"cn-north-1":     "China (Beijing)",
	"cn-northwest-1": "China (Ningxia)",
	"eu-north-1":     "EU (Stockholm)",
	"me-south-1":     "Middle East (Bahrain)",
	"af-south-1":     "Africa (Cape Town)",
	"ap-east-1":      "Asia Pacific (Hong Kong)",
	"ap-south-2":     "Asia Pacific (Hyderabad)",
	"eu-south-1":     "EU (Milan)",
	"eu-south-2":     "EU (Madrid)",
}

// RegionDisplayName resolves a region code like "us-east-1" to its pricing
// API location name. Unknown regions are an error, not a fallback.
func RegionDisplayName(region string) (string, error) {
	name, ok := regionDisplayNames[region]
	if !ok {
		return "", fmt.Errorf("catalog: unknown region %q", region)
	}
	return name, nil
}
