package snapshot

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
)

// DeploymentName derives a pod's deployment name from its owner references.
// The owning ReplicaSet's name is split on the last hyphen and the prefix is
// kept, stripping the template hash (e.g. "web-6d4cf56db6" -> "web").
//
// The rule is a naming-convention heuristic: a standalone ReplicaSet whose
// name happens to contain a hyphen will be misattributed to a deployment
// named by the prefix. Pods without a ReplicaSet owner report "Unknown".
func DeploymentName(pod *corev1.Pod) string {
	for _, owner := range pod.OwnerReferences {
		if owner.Kind != "ReplicaSet" {
			continue
		}
		if idx := strings.LastIndex(owner.Name, "-"); idx > 0 {
			return owner.Name[:idx]
		}
		return owner.Name
	}
	return UnknownSentinel
}
