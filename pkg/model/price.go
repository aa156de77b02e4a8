package model

// Price is a resolved unit price: cost per vCPU per hour. Known is false when
// the pricing lookup could not resolve the key; unknown prices propagate as
// zero-cost output rather than blocking publication of usage metrics.
type Price struct {
	PerVCPUHour float64 `json:"cost_per_vcpu_per_hour"`
	Known       bool    `json:"known"`
}

// UnknownPrice is the zero value returned when a lookup fails or misses.
var UnknownPrice = Price{}

// KnownPrice builds a resolved price.
func KnownPrice(perVCPUHour float64) Price {
	return Price{PerVCPUHour: perVCPUHour, Known: true}
}
