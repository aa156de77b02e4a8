// Package snapshot assembles per-pod and per-node resource records from the
// cluster API and the metrics API. Records are built fresh on every scrape
// cycle and never persisted.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsv1beta1client "k8s.io/metrics/pkg/client/clientset/versioned/typed/metrics/v1beta1"

	"github.com/costscope/costscope-agent/internal/cost"
	agenterrors "github.com/costscope/costscope-agent/internal/errors"
	"github.com/costscope/costscope-agent/internal/observability"
	"github.com/costscope/costscope-agent/internal/units"
	"github.com/costscope/costscope-agent/pkg/model"
)

// UnknownSentinel is reported for identity fields whose source label or
// owner reference is missing. Partial records are preferred over dropped ones.
const UnknownSentinel = "Unknown"

// Node label keys carrying topology and pricing identity.
const (
	labelRegion       = "topology.kubernetes.io/region"
	labelInstanceType = "node.kubernetes.io/instance-type"
	labelCapacityType = "eks.amazonaws.com/capacityType"
	labelOS           = "kubernetes.io/os"
)

// ClusterAPI abstracts the cluster listing surface for testability.
type ClusterAPI interface {
	ListPods(ctx context.Context) ([]corev1.Pod, error)
	ListNodes(ctx context.Context) ([]corev1.Node, error)
}

// MetricsAPI abstracts the metrics-server API for testability.
type MetricsAPI interface {
	ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error)
	ListNodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error)
}

// clusterAPIClient wraps the real clientset to implement ClusterAPI.
type clusterAPIClient struct {
	client kubernetes.Interface
}

func (c *clusterAPIClient) ListPods(ctx context.Context) ([]corev1.Pod, error) {
	list, err := c.client.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *clusterAPIClient) ListNodes(ctx context.Context) ([]corev1.Node, error) {
	list, err := c.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// metricsAPIClient wraps the real metrics client to implement MetricsAPI.
type metricsAPIClient struct {
	client metricsv1beta1client.MetricsV1beta1Interface
}

func (c *metricsAPIClient) ListPodMetrics(ctx context.Context) ([]metricsv1beta1.PodMetrics, error) {
	list, err := c.client.PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

func (c *metricsAPIClient) ListNodeMetrics(ctx context.Context) ([]metricsv1beta1.NodeMetrics, error) {
	list, err := c.client.NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// Reader builds PodResourceRecords and NodeResourceRecords for one cycle.
type Reader struct {
	cluster ClusterAPI
	metrics MetricsAPI

	clusterName      string
	ignoreNamespaces map[string]struct{}

	errs *agenterrors.ErrorCollector
	obs  *observability.Metrics
}

// NewReader creates a Reader over the given API abstractions.
// errs and obs may be nil.
func NewReader(cluster ClusterAPI, metrics MetricsAPI, clusterName string, ignoreNamespaces []string, errs *agenterrors.ErrorCollector, obs *observability.Metrics) *Reader {
	ignore := make(map[string]struct{}, len(ignoreNamespaces))
	for _, ns := range ignoreNamespaces {
		ignore[ns] = struct{}{}
	}
	return &Reader{
		cluster:          cluster,
		metrics:          metrics,
		clusterName:      clusterName,
		ignoreNamespaces: ignore,
		errs:             errs,
		obs:              obs,
	}
}

// NewReaderFromClients creates a Reader using real clientsets.
func NewReaderFromClients(client kubernetes.Interface, metricsClient metricsv1beta1client.MetricsV1beta1Interface, clusterName string, ignoreNamespaces []string, errs *agenterrors.ErrorCollector, obs *observability.Metrics) *Reader {
	return NewReader(
		&clusterAPIClient{client: client},
		&metricsAPIClient{client: metricsClient},
		clusterName, ignoreNamespaces, errs, obs,
	)
}

// ListPodRecords assembles one record per pod outside the ignored namespaces.
//
// Only the first container's resource requests and usage are read. Multi
// container pods therefore under-report; this matches the established cost
// output semantics and changing it would silently shift every derived figure.
//
// Per-item failures (missing metrics, malformed quantities, missing labels)
// degrade the affected record to zeros or the "Unknown" sentinel. Only a
// failure to list pods aborts the pass.
func (r *Reader) ListPodRecords(ctx context.Context) ([]model.PodResourceRecord, error) {
	pods, err := r.cluster.ListPods(ctx)
	if err != nil {
		r.reportUpstream("snapshot.pods", "pods", fmt.Sprintf("listing pods: %v", err), err)
		return nil, fmt.Errorf("snapshot: listing pods: %w", err)
	}

	nodesByName := r.nodeIndex(ctx)
	podMetrics := r.podMetricsIndex(ctx)

	records := make([]model.PodResourceRecord, 0, len(pods))
	for i := range pods {
		pod := &pods[i]
		if _, ignored := r.ignoreNamespaces[pod.Namespace]; ignored {
			continue
		}
		records = append(records, r.buildPodRecord(pod, nodesByName, podMetrics))
	}
	return records, nil
}

// ListNodeRecords assembles one record per node.
func (r *Reader) ListNodeRecords(ctx context.Context) ([]model.NodeResourceRecord, error) {
	nodes, err := r.cluster.ListNodes(ctx)
	if err != nil {
		r.reportUpstream("snapshot.nodes", "nodes", fmt.Sprintf("listing nodes: %v", err), err)
		return nil, fmt.Errorf("snapshot: listing nodes: %w", err)
	}

	usageByNode := r.nodeMetricsIndex(ctx)

	records := make([]model.NodeResourceRecord, 0, len(nodes))
	for i := range nodes {
		records = append(records, r.buildNodeRecord(&nodes[i], usageByNode))
	}
	return records, nil
}

func (r *Reader) buildPodRecord(pod *corev1.Pod, nodesByName map[string]*corev1.Node, podMetrics map[string]*metricsv1beta1.PodMetrics) model.PodResourceRecord {
	rec := model.PodResourceRecord{
		ClusterName:     r.clusterName,
		Namespace:       pod.Namespace,
		PodName:         pod.Name,
		NodeName:        pod.Spec.NodeName,
		DeploymentName:  DeploymentName(pod),
		Region:          UnknownSentinel,
		InstanceType:    UnknownSentinel,
		OperatingSystem: UnknownSentinel,
	}

	if node, ok := nodesByName[pod.Spec.NodeName]; ok {
		rec.Region = labelOrUnknown(node.Labels, labelRegion)
		rec.InstanceType = labelOrUnknown(node.Labels, labelInstanceType)
		rec.OperatingSystem = labelOrUnknown(node.Labels, labelOS)
	} else if pod.Spec.NodeName != "" {
		r.reportMetadata("snapshot.pods", fmt.Sprintf("node %s not found for pod %s/%s", pod.Spec.NodeName, pod.Namespace, pod.Name))
	}

	// First container only.
	if len(pod.Spec.Containers) > 0 {
		requests := pod.Spec.Containers[0].Resources.Requests
		if cpu, ok := requests[corev1.ResourceCPU]; ok {
			rec.CPURequestMillicores = r.normalizeCPU(cpu.String(), pod.Namespace, pod.Name)
		}
		if mem, ok := requests[corev1.ResourceMemory]; ok {
			rec.MemoryRequestMiB = r.normalizeMemory(mem.String(), pod.Namespace, pod.Name)
		}
	}

	if pm, ok := podMetrics[pod.Namespace+"/"+pod.Name]; ok && len(pm.Containers) > 0 {
		usage := pm.Containers[0].Usage
		if cpu, ok := usage[corev1.ResourceCPU]; ok {
			rec.CPUUsageMillicores = r.normalizeCPU(cpu.String(), pod.Namespace, pod.Name)
		}
		if mem, ok := usage[corev1.ResourceMemory]; ok {
			rec.MemoryUsageMiB = r.normalizeMemory(mem.String(), pod.Namespace, pod.Name)
		}
	}

	rec.UnusedCPUMillicores = cost.UnusedCPU(rec.CPURequestMillicores, rec.CPUUsageMillicores)
	return rec
}

func (r *Reader) buildNodeRecord(node *corev1.Node, usageByNode map[string]*metricsv1beta1.NodeMetrics) model.NodeResourceRecord {
	rec := model.NodeResourceRecord{
		ClusterName:     r.clusterName,
		NodeName:        node.Name,
		Region:          labelOrUnknown(node.Labels, labelRegion),
		InstanceType:    labelOrUnknown(node.Labels, labelInstanceType),
		CapacityType:    labelOrUnknown(node.Labels, labelCapacityType),
		OperatingSystem: labelOrUnknown(node.Labels, labelOS),
	}

	if cpu, ok := node.Status.Capacity[corev1.ResourceCPU]; ok {
		rec.TotalCPUMillicores = r.normalizeCPU(cpu.String(), "", node.Name)
	}
	if mem, ok := node.Status.Capacity[corev1.ResourceMemory]; ok {
		rec.TotalMemoryMiB = r.normalizeMemory(mem.String(), "", node.Name)
	}

	if nm, ok := usageByNode[node.Name]; ok {
		if cpu, ok := nm.Usage[corev1.ResourceCPU]; ok {
			rec.CPUUsageMillicores = r.normalizeCPU(cpu.String(), "", node.Name)
		}
		if mem, ok := nm.Usage[corev1.ResourceMemory]; ok {
			rec.MemoryUsageMiB = r.normalizeMemory(mem.String(), "", node.Name)
		}
	}
	return rec
}

// nodeIndex lists nodes once per pass and indexes them by name for label
// lookups. A listing failure degrades every pod's topology to "Unknown"
// instead of aborting the pod pass.
func (r *Reader) nodeIndex(ctx context.Context) map[string]*corev1.Node {
	nodes, err := r.cluster.ListNodes(ctx)
	if err != nil {
		r.reportUpstream("snapshot.pods", "nodes", fmt.Sprintf("listing nodes for pod topology: %v", err), err)
		return nil
	}
	byName := make(map[string]*corev1.Node, len(nodes))
	for i := range nodes {
		byName[nodes[i].Name] = &nodes[i]
	}
	return byName
}

// podMetricsIndex lists pod metrics once per pass, keyed by namespace/name.
// A metrics failure zeroes usage for the affected pods and the pass continues.
func (r *Reader) podMetricsIndex(ctx context.Context) map[string]*metricsv1beta1.PodMetrics {
	items, err := r.metrics.ListPodMetrics(ctx)
	if err != nil {
		r.reportUpstream("snapshot.pods", "podmetrics", fmt.Sprintf("listing pod metrics: %v", err), err)
		return nil
	}
	byKey := make(map[string]*metricsv1beta1.PodMetrics, len(items))
	for i := range items {
		byKey[items[i].Namespace+"/"+items[i].Name] = &items[i]
	}
	return byKey
}

func (r *Reader) nodeMetricsIndex(ctx context.Context) map[string]*metricsv1beta1.NodeMetrics {
	items, err := r.metrics.ListNodeMetrics(ctx)
	if err != nil {
		r.reportUpstream("snapshot.nodes", "nodemetrics", fmt.Sprintf("listing node metrics: %v", err), err)
		return nil
	}
	byName := make(map[string]*metricsv1beta1.NodeMetrics, len(items))
	for i := range items {
		byName[items[i].Name] = &items[i]
	}
	return byName
}

// normalizeCPU converts a CPU quantity, degrading malformed input to zero.
func (r *Reader) normalizeCPU(value, namespace, name string) float64 {
	v, err := units.NormalizeCPU(value)
	if err != nil {
		r.reportMalformed(namespace, name, err)
		return 0
	}
	return v
}

func (r *Reader) normalizeMemory(value, namespace, name string) float64 {
	v, err := units.NormalizeMemory(value)
	if err != nil {
		r.reportMalformed(namespace, name, err)
		return 0
	}
	return v
}

func (r *Reader) reportMalformed(namespace, name string, err error) {
	if r.errs != nil {
		r.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrMalformedQuantity,
			Message:   fmt.Sprintf("malformed quantity on %s/%s: %v", namespace, name, err),
			Component: "snapshot",
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
	}
	slog.Warn("malformed quantity treated as zero", "namespace", namespace, "name", name, "error", err)
}

func (r *Reader) reportMetadata(component, msg string) {
	if r.errs != nil {
		r.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrMetadataUnavailable,
			Message:   msg,
			Component: component,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	slog.Debug("metadata unavailable", "detail", msg)
}

func (r *Reader) reportUpstream(component, resource, msg string, err error) {
	if r.errs != nil {
		r.errs.Report(agenterrors.AgentError{
			Code:      agenterrors.ErrUpstreamUnavailable,
			Message:   msg,
			Component: component,
			Timestamp: time.Now().UnixMilli(),
			Err:       err,
		})
	}
	if r.obs != nil {
		r.obs.ClusterAPIErrorsTotal.WithLabelValues(resource).Inc()
	}
	slog.Error("upstream API error", "component", component, "resource", resource, "error", err)
}

func labelOrUnknown(labels map[string]string, key string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return UnknownSentinel
}
