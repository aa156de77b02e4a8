// Package cost derives usage and wastage costs from normalized resource
// records and resolved unit prices. All functions are pure.
package cost

import (
	"math"

	"github.com/costscope/costscope-agent/pkg/model"
)

// Round8 rounds a cost figure to 8 decimal places, the precision carried on
// every published cost metric.
func Round8(v float64) float64 {
	return math.Round(v*1e8) / 1e8
}

// UnusedCPU returns request minus usage in millicores, clamped at zero.
// It returns nil when the pod has no CPU request: unused capacity is not
// defined without a request, which is distinct from an unused value of zero.
func UnusedCPU(requestMillicores, usageMillicores float64) *float64 {
	if requestMillicores <= 0 {
		return nil
	}
	unused := requestMillicores - usageMillicores
	if unused < 0 {
		unused = 0
	}
	return &unused
}

// PodCost computes the usage and wastage cost for a pod record.
// Wastage is zero when the pod has no CPU request. Unknown prices yield
// zero for both outputs.
func PodCost(rec model.PodResourceRecord, price model.Price) (usageCost, wastageCost float64) {
	if !price.Known || price.PerVCPUHour <= 0 {
		return 0, 0
	}

	usageCost = Round8((rec.CPUUsageMillicores / 1000) * price.PerVCPUHour)

	if rec.UnusedCPUMillicores != nil {
		wastageCost = Round8((*rec.UnusedCPUMillicores / 1000) * price.PerVCPUHour)
	}
	return usageCost, wastageCost
}

// NodeCost computes the hourly, usage, and wastage cost for a node record.
// The hourly cost splits proportionally by the node's CPU usage fraction, so
// usageCost + wastageCost == hourlyCost within rounding tolerance. All three
// are zero when capacity is zero or the price is unknown.
func NodeCost(rec model.NodeResourceRecord, price model.Price) (hourlyCost, usageCost, wastageCost float64) {
	if !price.Known || price.PerVCPUHour <= 0 || rec.TotalCPUMillicores <= 0 {
		return 0, 0, 0
	}

	hourlyCost = Round8(price.PerVCPUHour * (rec.TotalCPUMillicores / 1000))

	// Clamp usage into [0, capacity] so neither share goes negative.
	usage := rec.CPUUsageMillicores
	if usage < 0 {
		usage = 0
	}
	if usage > rec.TotalCPUMillicores {
		usage = rec.TotalCPUMillicores
	}

	usageCost = Round8(hourlyCost * (usage / rec.TotalCPUMillicores))
	wastageCost = Round8(hourlyCost * ((rec.TotalCPUMillicores - usage) / rec.TotalCPUMillicores))
	return hourlyCost, usageCost, wastageCost
}
