// Package publisher holds the current cost gauge values served to the
// pull-based exposition endpoint.
package publisher

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/costscope/costscope-agent/pkg/model"
)

// Publisher owns the five cost gauge vectors. Values are overwritten once per
// scrape cycle by the orchestrator goroutine; the exposition handler only
// reads them, and the underlying gauge storage is safe for concurrent reads.
type Publisher struct {
	podUsageCost    *prometheus.GaugeVec
	podWastageCost  *prometheus.GaugeVec
	nodeUsageCost   *prometheus.GaugeVec
	nodeWastageCost *prometheus.GaugeVec
	nodeActualCost  *prometheus.GaugeVec
}

var (
	podLabels  = []string{"cluster_name", "pod_namespace", "deployment_name", "pod_name"}
	nodeLabels = []string{"cluster_name", "node_name", "instance_type"}
)

// NewPublisher creates a Publisher with all gauges registered on reg.
func NewPublisher(reg prometheus.Registerer) *Publisher {
	p := &Publisher{
		podUsageCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pod_usage_cost",
			Help: "Hourly cost attributable to a pod's current CPU usage.",
		}, podLabels),
		podWastageCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pod_wastage_cost",
			Help: "Hourly cost attributable to a pod's requested-but-unused CPU.",
		}, podLabels),
		nodeUsageCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "node_usage_cost",
			Help: "Share of a node's hourly cost covered by current CPU usage.",
		}, nodeLabels),
		nodeWastageCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "node_wastage_cost",
			Help: "Share of a node's hourly cost covered by idle CPU capacity.",
		}, nodeLabels),
		nodeActualCost: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "node_actual_cost",
			Help: "Full hourly cost of a node at its resolved unit price.",
		}, nodeLabels),
	}

	reg.MustRegister(
		p.podUsageCost,
		p.podWastageCost,
		p.nodeUsageCost,
		p.nodeWastageCost,
		p.nodeActualCost,
	)
	return p
}

// PublishPods replaces all pod cost series with the given cycle's records.
// Resetting first drops series for pods that disappeared since the last cycle.
func (p *Publisher) PublishPods(records []model.PodResourceRecord) {
	p.podUsageCost.Reset()
	p.podWastageCost.Reset()

	for _, rec := range records {
		labels := prometheus.Labels{
			"cluster_name":    rec.ClusterName,
			"pod_namespace":   rec.Namespace,
			"deployment_name": rec.DeploymentName,
			"pod_name":        rec.PodName,
		}
		p.podUsageCost.With(labels).Set(rec.UsageCost)
		p.podWastageCost.With(labels).Set(rec.WastageCost)
	}
}

// PublishNodes replaces all node cost series with the given cycle's records.
func (p *Publisher) PublishNodes(records []model.NodeResourceRecord) {
	p.nodeUsageCost.Reset()
	p.nodeWastageCost.Reset()
	p.nodeActualCost.Reset()

	for _, rec := range records {
		labels := prometheus.Labels{
			"cluster_name":  rec.ClusterName,
			"node_name":     rec.NodeName,
			"instance_type": rec.InstanceType,
		}
		p.nodeUsageCost.With(labels).Set(rec.UsageCost)
		p.nodeWastageCost.With(labels).Set(rec.WastageCost)
		p.nodeActualCost.With(labels).Set(rec.HourlyCost)
	}
}
