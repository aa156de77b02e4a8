package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all agent configuration values.
type Config struct {
	ClusterName  string // COSTSCOPE_CLUSTER_NAME, default: "Unknown"
	InstanceID   string // COSTSCOPE_INSTANCE_ID, default: generated UUID
	PodNamespace string // POD_NAMESPACE, default: "default"

	MetricsPort    int           // METRICS_PORT, default: 8000
	ScrapeInterval time.Duration // COSTSCOPE_SCRAPE_INTERVAL, default: 300s, measured end-to-start

	PricingURL     string        // COSTSCOPE_PRICING_URL, pricing lookup endpoint
	PricingTimeout time.Duration // COSTSCOPE_PRICING_TIMEOUT, default: 5s
	PriceTTL       time.Duration // COSTSCOPE_PRICE_TTL, default: 300s

	IgnoreNamespaces  []string // COSTSCOPE_IGNORE_NAMESPACES, comma-separated, default: kube-system
	GatherConcurrency int      // COSTSCOPE_GATHER_CONCURRENCY, default: 3

	DebugEndpoints bool // COSTSCOPE_DEBUG_ENDPOINTS, default: false; pprof/debug on the metrics port
}

// defaultPricingURL targets the in-cluster pricing service.
const defaultPricingURL = "http://costscope-pricing.costscope.svc.cluster.local:80/api/pricing"

// Load reads configuration from environment variables and returns a Config
// with defaults applied for any unset values.
func Load() Config {
	cfg := Config{
		ClusterName:  envOrDefault("COSTSCOPE_CLUSTER_NAME", "Unknown"),
		InstanceID:   os.Getenv("COSTSCOPE_INSTANCE_ID"),
		PodNamespace: envOrDefault("POD_NAMESPACE", "default"),

		MetricsPort:    parseInt("METRICS_PORT", 8000),
		ScrapeInterval: parseDuration("COSTSCOPE_SCRAPE_INTERVAL", 300*time.Second),

		PricingURL:     envOrDefault("COSTSCOPE_PRICING_URL", defaultPricingURL),
		PricingTimeout: parseDuration("COSTSCOPE_PRICING_TIMEOUT", 5*time.Second),
		PriceTTL:       parseDuration("COSTSCOPE_PRICE_TTL", 300*time.Second),

		GatherConcurrency: parseInt("COSTSCOPE_GATHER_CONCURRENCY", 3),
	}

	cfg.IgnoreNamespaces = parseStringSlice("COSTSCOPE_IGNORE_NAMESPACES")
	if cfg.IgnoreNamespaces == nil {
		cfg.IgnoreNamespaces = []string{"kube-system"}
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.New().String()
	}

	cfg.DebugEndpoints = parseBool("COSTSCOPE_DEBUG_ENDPOINTS", false)

	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// parseDuration tries time.ParseDuration first, then falls back to treating
// the value as integer seconds.
func parseDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(v)
	if err == nil {
		return d
	}

	// Fallback: treat as integer seconds
	secs, err := strconv.Atoi(v)
	if err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}

func parseBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func parseInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseStringSlice(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var result []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			result = append(result, s)
		}
	}
	return result
}
