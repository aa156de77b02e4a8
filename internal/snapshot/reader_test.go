package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
	"k8s.io/utils/ptr"

	agenterrors "github.com/costscope/costscope-agent/internal/errors"
	"github.com/costscope/costscope-agent/internal/observability"
)

func testNode(name string, labels map[string]string) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status: corev1.NodeStatus{
			Capacity: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("4"),
				corev1.ResourceMemory: resource.MustParse("16Gi"),
			},
		},
	}
}

func testPod(namespace, name, nodeName, rsOwner string, cpuRequest, memRequest string) *corev1.Pod {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.PodSpec{
			NodeName: nodeName,
			Containers: []corev1.Container{
				{Name: "app", Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{}}},
			},
		},
	}
	if rsOwner != "" {
		pod.OwnerReferences = []metav1.OwnerReference{
			{Kind: "ReplicaSet", Name: rsOwner, Controller: ptr.To(true)},
		}
	}
	if cpuRequest != "" {
		pod.Spec.Containers[0].Resources.Requests[corev1.ResourceCPU] = resource.MustParse(cpuRequest)
	}
	if memRequest != "" {
		pod.Spec.Containers[0].Resources.Requests[corev1.ResourceMemory] = resource.MustParse(memRequest)
	}
	return pod
}

func testPodMetrics(namespace, name, cpu, mem string) *metricsv1beta1.PodMetrics {
	return &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Containers: []metricsv1beta1.ContainerMetrics{
			{Name: "app", Usage: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse(cpu),
				corev1.ResourceMemory: resource.MustParse(mem),
			}},
		},
	}
}

// newMetricsFake builds a fake metrics clientset with the given objects.
// The tracker's Add guesses the resource name from the kind ("podmetricses",
// "nodemetricses"), but the generated typed clients query "pods" and "nodes",
// so objects must be created under those resources explicitly.
func newMetricsFake(t *testing.T, objects ...runtime.Object) *metricsfake.Clientset {
	t.Helper()
	cs := metricsfake.NewSimpleClientset()
	for _, obj := range objects {
		switch o := obj.(type) {
		case *metricsv1beta1.PodMetrics:
			require.NoError(t, cs.Tracker().Create(metricsv1beta1.SchemeGroupVersion.WithResource("pods"), o, o.Namespace))
		case *metricsv1beta1.NodeMetrics:
			require.NoError(t, cs.Tracker().Create(metricsv1beta1.SchemeGroupVersion.WithResource("nodes"), o, ""))
		default:
			t.Fatalf("unsupported metrics fake object %T", obj)
		}
	}
	return cs
}

var eksLabels = map[string]string{
	"topology.kubernetes.io/region":    "us-east-1",
	"node.kubernetes.io/instance-type": "m5.xlarge",
	"eks.amazonaws.com/capacityType":   "ON_DEMAND",
	"kubernetes.io/os":                 "linux",
}

func TestListPodRecords_FullRecord(t *testing.T) {
	kube := fake.NewSimpleClientset(
		testNode("node-1", eksLabels),
		testPod("costapp", "web-6d4cf56db6-x2bpq", "node-1", "web-6d4cf56db6", "1000m", "512Mi"),
	)
	metrics := newMetricsFake(t,
		testPodMetrics("costapp", "web-6d4cf56db6-x2bpq", "250m", "128Mi"),
	)
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", []string{"kube-system"}, nil, nil)

	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "test-cluster", rec.ClusterName)
	assert.Equal(t, "costapp", rec.Namespace)
	assert.Equal(t, "web-6d4cf56db6-x2bpq", rec.PodName)
	assert.Equal(t, "web", rec.DeploymentName)
	assert.Equal(t, "node-1", rec.NodeName)
	assert.Equal(t, "us-east-1", rec.Region)
	assert.Equal(t, "m5.xlarge", rec.InstanceType)
	assert.Equal(t, "linux", rec.OperatingSystem)
	assert.InDelta(t, 1000, rec.CPURequestMillicores, 1e-9)
	assert.InDelta(t, 512, rec.MemoryRequestMiB, 1e-9)
	assert.InDelta(t, 250, rec.CPUUsageMillicores, 1e-9)
	assert.InDelta(t, 128, rec.MemoryUsageMiB, 1e-9)
	require.NotNil(t, rec.UnusedCPUMillicores)
	assert.InDelta(t, 750, *rec.UnusedCPUMillicores, 1e-9)
}

func TestListPodRecords_IgnoredNamespaceSkipped(t *testing.T) {
	kube := fake.NewSimpleClientset(
		testNode("node-1", eksLabels),
		testPod("kube-system", "coredns-abc", "node-1", "", "100m", ""),
		testPod("costapp", "web-1", "node-1", "", "100m", ""),
	)
	metrics := metricsfake.NewSimpleClientset()
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", []string{"kube-system"}, nil, nil)

	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "web-1", records[0].PodName)
}

func TestListPodRecords_MissingLabelsDegradeToUnknown(t *testing.T) {
	kube := fake.NewSimpleClientset(
		testNode("node-1", nil),
		testPod("costapp", "web-1", "node-1", "", "100m", ""),
	)
	metrics := metricsfake.NewSimpleClientset()
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", nil, nil, nil)

	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, UnknownSentinel, records[0].Region)
	assert.Equal(t, UnknownSentinel, records[0].InstanceType)
	assert.Equal(t, UnknownSentinel, records[0].OperatingSystem)
}

func TestListPodRecords_NoMetricsZeroUsage(t *testing.T) {
	kube := fake.NewSimpleClientset(
		testNode("node-1", eksLabels),
		testPod("costapp", "web-1", "node-1", "", "500m", "256Mi"),
	)
	metrics := metricsfake.NewSimpleClientset()
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", nil, nil, nil)

	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Zero(t, rec.CPUUsageMillicores)
	assert.Zero(t, rec.MemoryUsageMiB)
	require.NotNil(t, rec.UnusedCPUMillicores)
	assert.InDelta(t, 500, *rec.UnusedCPUMillicores, 1e-9)
}

func TestListPodRecords_NoRequestNoUnused(t *testing.T) {
	kube := fake.NewSimpleClientset(
		testNode("node-1", eksLabels),
		testPod("costapp", "web-1", "node-1", "", "", ""),
	)
	metrics := newMetricsFake(t,
		testPodMetrics("costapp", "web-1", "100m", "64Mi"),
	)
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", nil, nil, nil)

	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Nil(t, records[0].UnusedCPUMillicores, "unused CPU undefined without a request")
}

func TestListPodRecords_FirstContainerOnly(t *testing.T) {
	pod := testPod("costapp", "web-1", "node-1", "", "200m", "")
	pod.Spec.Containers = append(pod.Spec.Containers, corev1.Container{
		Name: "sidecar",
		Resources: corev1.ResourceRequirements{Requests: corev1.ResourceList{
			corev1.ResourceCPU: resource.MustParse("900m"),
		}},
	})
	kube := fake.NewSimpleClientset(testNode("node-1", eksLabels), pod)

	pm := testPodMetrics("costapp", "web-1", "50m", "32Mi")
	pm.Containers = append(pm.Containers, metricsv1beta1.ContainerMetrics{
		Name:  "sidecar",
		Usage: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("800m")},
	})
	metrics := newMetricsFake(t, pm)

	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", nil, nil, nil)
	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	assert.InDelta(t, 200, records[0].CPURequestMillicores, 1e-9)
	assert.InDelta(t, 50, records[0].CPUUsageMillicores, 1e-9)
}

// erroringCluster injects listing failures.
type erroringCluster struct {
	pods     []corev1.Pod
	nodes    []corev1.Node
	podsErr  error
	nodesErr error
}

func (e *erroringCluster) ListPods(context.Context) ([]corev1.Pod, error) {
	return e.pods, e.podsErr
}

func (e *erroringCluster) ListNodes(context.Context) ([]corev1.Node, error) {
	return e.nodes, e.nodesErr
}

type erroringMetrics struct {
	podMetrics  []metricsv1beta1.PodMetrics
	nodeMetrics []metricsv1beta1.NodeMetrics
	err         error
}

func (e *erroringMetrics) ListPodMetrics(context.Context) ([]metricsv1beta1.PodMetrics, error) {
	return e.podMetrics, e.err
}

func (e *erroringMetrics) ListNodeMetrics(context.Context) ([]metricsv1beta1.NodeMetrics, error) {
	return e.nodeMetrics, e.err
}

func TestListPodRecords_ListFailureAbortsPass(t *testing.T) {
	clk := agenterrors.RealClock{}
	ec := agenterrors.NewErrorCollector(clk)
	cluster := &erroringCluster{podsErr: errors.New("connection refused")}
	r := NewReader(cluster, &erroringMetrics{}, "test-cluster", nil, ec, observability.NewMetrics())

	_, err := r.ListPodRecords(context.Background())
	require.Error(t, err)

	codes := ec.GetActiveErrorCodes()
	require.Len(t, codes, 1)
	assert.Equal(t, string(agenterrors.ErrUpstreamUnavailable), codes[0])
}

func TestListPodRecords_MetricsFailureIsolated(t *testing.T) {
	node := testNode("node-1", eksLabels)
	pod := testPod("costapp", "web-1", "node-1", "", "500m", "")
	cluster := &erroringCluster{pods: []corev1.Pod{*pod}, nodes: []corev1.Node{*node}}
	metrics := &erroringMetrics{err: errors.New("metrics-server down")}

	r := NewReader(cluster, metrics, "test-cluster", nil, nil, nil)
	records, err := r.ListPodRecords(context.Background())
	require.NoError(t, err, "metrics failure must not abort the pod pass")
	require.Len(t, records, 1)
	assert.Zero(t, records[0].CPUUsageMillicores)
}

func TestListNodeRecords_FullRecord(t *testing.T) {
	kube := fake.NewSimpleClientset(testNode("node-1", eksLabels))
	metrics := newMetricsFake(t, &metricsv1beta1.NodeMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "node-1"},
		Usage: corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("1"),
			corev1.ResourceMemory: resource.MustParse("4Gi"),
		},
	})
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", nil, nil, nil)

	records, err := r.ListNodeRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "node-1", rec.NodeName)
	assert.Equal(t, "us-east-1", rec.Region)
	assert.Equal(t, "m5.xlarge", rec.InstanceType)
	assert.Equal(t, "ON_DEMAND", rec.CapacityType)
	assert.Equal(t, "linux", rec.OperatingSystem)
	assert.InDelta(t, 4000, rec.TotalCPUMillicores, 1e-9)
	assert.InDelta(t, 16384, rec.TotalMemoryMiB, 1e-9)
	assert.InDelta(t, 1000, rec.CPUUsageMillicores, 1e-9)
	assert.InDelta(t, 4096, rec.MemoryUsageMiB, 1e-9)
}

func TestListNodeRecords_NoMetricsZeroUsage(t *testing.T) {
	kube := fake.NewSimpleClientset(testNode("node-1", eksLabels))
	metrics := metricsfake.NewSimpleClientset()
	r := NewReaderFromClients(kube, metrics.MetricsV1beta1(), "test-cluster", nil, nil, nil)

	records, err := r.ListNodeRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Zero(t, records[0].CPUUsageMillicores)
	assert.InDelta(t, 4000, records[0].TotalCPUMillicores, 1e-9)
}

func TestListNodeRecords_ListFailureAbortsPass(t *testing.T) {
	cluster := &erroringCluster{nodesErr: errors.New("forbidden")}
	r := NewReader(cluster, &erroringMetrics{}, "test-cluster", nil, nil, nil)

	_, err := r.ListNodeRecords(context.Background())
	require.Error(t, err)
}
