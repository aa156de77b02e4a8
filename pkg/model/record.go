package model

// PodResourceRecord is one pod's resource and cost attribution for a single
// scrape cycle. Records are rebuilt from the cluster and metrics APIs on every
// cycle and discarded after publication; nothing here is persisted.
type PodResourceRecord struct {
	ClusterName    string `json:"cluster_name"`
	Namespace      string `json:"namespace"`
	PodName        string `json:"pod_name"`
	DeploymentName string `json:"deployment_name"`
	NodeName       string `json:"node_name"`

	Region          string `json:"region"`
	InstanceType    string `json:"instance_type"`
	OperatingSystem string `json:"operating_system"`

	CPURequestMillicores float64 `json:"cpu_request_millicores"`
	CPUUsageMillicores   float64 `json:"cpu_usage_millicores"`
	MemoryRequestMiB     float64 `json:"memory_request_mib"`
	MemoryUsageMiB       float64 `json:"memory_usage_mib"`

	// UnusedCPUMillicores is request minus usage. It is nil when the pod has
	// no CPU request, which is distinct from an unused value of zero.
	UnusedCPUMillicores *float64 `json:"unused_cpu_millicores,omitempty"`

	UsageCost   float64 `json:"usage_cost"`
	WastageCost float64 `json:"wastage_cost"`
}

// NodeResourceRecord is one node's capacity, usage, and cost attribution for a
// single scrape cycle.
type NodeResourceRecord struct {
	ClusterName     string `json:"cluster_name"`
	NodeName        string `json:"node_name"`
	InstanceType    string `json:"instance_type"`
	Region          string `json:"region"`
	CapacityType    string `json:"capacity_type"`
	OperatingSystem string `json:"operating_system"`

	TotalCPUMillicores float64 `json:"total_cpu_millicores"`
	TotalMemoryMiB     float64 `json:"total_memory_mib"`
	CPUUsageMillicores float64 `json:"cpu_usage_millicores"`
	MemoryUsageMiB     float64 `json:"memory_usage_mib"`

	HourlyCost  float64 `json:"hourly_cost"`
	UsageCost   float64 `json:"usage_cost"`
	WastageCost float64 `json:"wastage_cost"`
}
