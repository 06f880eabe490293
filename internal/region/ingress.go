package region

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ingressControllerNamespace is where every first-party and BYOC
// cluster's ingress controller is installed, mirroring the teacher's
// fixed-namespace convention for cluster-wide infrastructure.
const ingressControllerNamespace = "ingress-nginx"

// IngressControllerHostname resolves the external hostname of the
// cluster's ingress controller LoadBalancer service, the same
// Service.Status.LoadBalancer.Ingress lookup the teacher's endpoint
// discovery already does per-workload, applied here to the one
// cluster-wide controller service (spec section 4.6 job 1).
func IngressControllerHostname(ctx context.Context, client kubernetes.Interface) (string, error) {
	services, err := client.CoreV1().Services(ingressControllerNamespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app.kubernetes.io/component=controller",
	})
	if err != nil {
		return "", fmt.Errorf("list ingress controller services: %w", err)
	}

	for _, svc := range services.Items {
		if svc.Spec.Type != corev1.ServiceTypeLoadBalancer {
			continue
		}
		for _, ingress := range svc.Status.LoadBalancer.Ingress {
			if ingress.Hostname != "" {
				return ingress.Hostname, nil
			}
			if ingress.IP != "" {
				return ingress.IP, nil
			}
		}
	}
	return "", fmt.Errorf("no ready ingress controller LoadBalancer found in namespace %q", ingressControllerNamespace)
}
