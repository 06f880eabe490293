package region_test

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patr-cloud/patr-api/internal/region"
)

func controllerService(name string, ingress ...corev1.LoadBalancerIngress) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "ingress-nginx",
			Labels:    map[string]string{"app.kubernetes.io/component": "controller"},
		},
		Spec: corev1.ServiceSpec{Type: corev1.ServiceTypeLoadBalancer},
		Status: corev1.ServiceStatus{
			LoadBalancer: corev1.LoadBalancerStatus{Ingress: ingress},
		},
	}
}

func TestIngressControllerHostname_PrefersHostname(t *testing.T) {
	client := fake.NewSimpleClientset(controllerService("ingress-nginx-controller",
		corev1.LoadBalancerIngress{Hostname: "lb.example.com", IP: "1.2.3.4"}))

	hostname, err := region.IngressControllerHostname(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "lb.example.com", hostname)
}

func TestIngressControllerHostname_FallsBackToIP(t *testing.T) {
	client := fake.NewSimpleClientset(controllerService("ingress-nginx-controller",
		corev1.LoadBalancerIngress{IP: "1.2.3.4"}))

	hostname, err := region.IngressControllerHostname(context.Background(), client)
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", hostname)
}

func TestIngressControllerHostname_NoLoadBalancerFound(t *testing.T) {
	client := fake.NewSimpleClientset()

	_, err := region.IngressControllerHostname(context.Background(), client)
	assert.Error(t, err)
}

func TestIngressControllerHostname_IgnoresNonLoadBalancerServices(t *testing.T) {
	svc := controllerService("ingress-nginx-controller", corev1.LoadBalancerIngress{Hostname: "lb.example.com"})
	svc.Spec.Type = corev1.ServiceTypeClusterIP

	client := fake.NewSimpleClientset(svc)

	_, err := region.IngressControllerHostname(context.Background(), client)
	assert.Error(t, err)
}
