package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that the Config contains valid values.
// Returns an error describing the first invalid field found.
func (c Config) Validate() error {
	if c.PricingURL == "" {
		return fmt.Errorf("config: COSTSCOPE_PRICING_URL is required")
	}
	if !strings.HasPrefix(c.PricingURL, "http://") && !strings.HasPrefix(c.PricingURL, "https://") {
		return fmt.Errorf("config: COSTSCOPE_PRICING_URL must be an http(s) URL, got %q", c.PricingURL)
	}

	if c.ScrapeInterval < 10*time.Second {
		return fmt.Errorf("config: ScrapeInterval must be >= 10s, got %v", c.ScrapeInterval)
	}

	if c.PriceTTL < time.Second {
		return fmt.Errorf("config: PriceTTL must be >= 1s, got %v", c.PriceTTL)
	}

	if c.PricingTimeout < time.Second {
		return fmt.Errorf("config: PricingTimeout must be >= 1s, got %v", c.PricingTimeout)
	}

	if c.GatherConcurrency < 1 {
		return fmt.Errorf("config: GatherConcurrency must be >= 1, got %d", c.GatherConcurrency)
	}

	if c.MetricsPort < 1 || c.MetricsPort > 65535 {
		return fmt.Errorf("config: MetricsPort must be 1-65535, got %d", c.MetricsPort)
	}

	return nil
}
