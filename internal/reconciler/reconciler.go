// Package reconciler implements the Kubernetes reconciler (C7): mapping
// a Deployment row to the Kubernetes primitives spec section 4.5
// describes (Deployment, Service, HPA, Ingress) and applying them with
// server-side apply under a dedicated field-manager, so a reconcile run
// is safe to repeat against an unconverged or already-converged
// cluster alike.
package reconciler

import (
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	appsv1ac "k8s.io/client-go/applyconfigurations/apps/v1"
	autoscalingv2ac "k8s.io/client-go/applyconfigurations/autoscaling/v2"
	corev1ac "k8s.io/client-go/applyconfigurations/core/v1"
	metav1ac "k8s.io/client-go/applyconfigurations/meta/v1"
	networkingv1ac "k8s.io/client-go/applyconfigurations/networking/v1"
	"k8s.io/client-go/kubernetes"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/helm"
)

// fieldManager identifies every object this reconciler applies; server
// side apply lets a second reconcile of the same deployment overwrite
// only fields owned by this manager, per spec section 4.5's "Apply".
const fieldManager = "patr-reconciler"

// Reconciler owns the converge loop for one cluster. A process that
// talks to multiple regions holds one Reconciler per region, each built
// from that region's own kubeconfig (spec section 4.5's per-region
// scoping, grounded on the teacher's per-workspace namespace convention
// in internal/repository/application/kubernetes.go).
type Reconciler struct {
	client kubernetes.Interface
	db     *gorm.DB
	logger *zap.Logger

	queue chan string

	// helm and hasher are only set when WithDatabaseProvisioning is
	// called; ProvisionDatabase refuses to run without them instead of
	// silently skipping credential hashing or chart rendering.
	helm   helm.Service
	hasher *authn.Hasher
}

// New wires a reconciler against client and opens a bounded work queue;
// Start must be called to drain it.
func New(client kubernetes.Interface, database *gorm.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{client: client, db: database, logger: logger, queue: make(chan string, 256)}
}

// EnqueueReconcile implements deployment.Reconciler. No pack dependency
// models a message broker for this concern (go.mod carries no queue
// client), so the work queue is an in-process buffered channel drained
// by Start's worker pool — consistent with spec section 5's "scheduled
// tasks share the same pool" as request handlers.
func (r *Reconciler) EnqueueReconcile(ctx context.Context, deploymentID string) error {
	select {
	case r.queue <- deploymentID:
		return nil
	default:
		return fmt.Errorf("reconcile queue full, dropping %s", deploymentID)
	}
}

// WithDatabaseProvisioning enables ProvisionDatabase/StartDatabaseProvisioning
// on a reconciler; without it ProvisionDatabase returns an error (which
// each StartDatabaseProvisioning tick logs), since rendering the
// managed-database chart and hashing its generated credentials need a
// Helm service and a password hasher the plain deployment-reconcile
// path has no other reason to hold.
func (r *Reconciler) WithDatabaseProvisioning(helmSvc helm.Service, hasher *authn.Hasher) *Reconciler {
	r.helm = helmSvc
	r.hasher = hasher
	return r
}

// Start runs workers goroutines pulling deployment IDs off the queue
// until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context, workers int) {
	for i := 0; i < workers; i++ {
		go r.worker(ctx)
	}
}

// StartDriftRepair runs DriftRepair on a fixed interval until ctx is
// done, logging but not propagating a failed sweep since the next tick
// retries.
func (r *Reconciler) StartDriftRepair(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.DriftRepair(ctx); err != nil {
					r.logger.Error("drift repair sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (r *Reconciler) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			if err := r.Reconcile(ctx, id); err != nil {
				r.logger.Error("reconcile failed", zap.String("deployment_id", id), zap.Error(err))
			}
		}
	}
}

// Reconcile converges the cluster onto the desired state for one
// deployment: a Deployment, a Service, an HPA, and an Ingress per
// managed URL.
func (r *Reconciler) Reconcile(ctx context.Context, deploymentID string) error {
	var dep db.Deployment
	if err := r.db.WithContext(ctx).Where("id = ?", deploymentID).First(&dep).Error; err != nil {
		return fmt.Errorf("load deployment: %w", err)
	}
	if dep.Status == db.DeploymentStatusDeleted {
		return r.teardown(ctx, &dep)
	}

	var ports []db.DeploymentExposedPort
	if err := r.db.WithContext(ctx).Where("deployment_id = ?", dep.ID).Find(&ports).Error; err != nil {
		return fmt.Errorf("load ports: %w", err)
	}
	var envs []db.DeploymentEnvironmentVariable
	if err := r.db.WithContext(ctx).Where("deployment_id = ?", dep.ID).Find(&envs).Error; err != nil {
		return fmt.Errorf("load env vars: %w", err)
	}
	var volumeMounts []db.DeploymentVolumeMount
	if err := r.db.WithContext(ctx).Where("deployment_id = ?", dep.ID).Find(&volumeMounts).Error; err != nil {
		return fmt.Errorf("load volume mounts: %w", err)
	}

	namespace := dep.WorkspaceID
	if err := r.ensureNamespace(ctx, namespace); err != nil {
		return fmt.Errorf("ensure namespace: %w", err)
	}

	applyOpts := metav1.ApplyOptions{FieldManager: fieldManager, Force: true}

	deploymentCfg := buildDeployment(&dep, ports, envs, volumeMounts)
	if _, err := r.client.AppsV1().Deployments(namespace).Apply(ctx, deploymentCfg, applyOpts); err != nil {
		return fmt.Errorf("apply deployment: %w", err)
	}

	if len(ports) > 0 {
		serviceCfg := buildService(&dep, ports)
		if _, err := r.client.CoreV1().Services(namespace).Apply(ctx, serviceCfg, applyOpts); err != nil {
			return fmt.Errorf("apply service: %w", err)
		}
	}

	hpaCfg := buildHPA(&dep)
	if _, err := r.client.AutoscalingV2().HorizontalPodAutoscalers(namespace).Apply(ctx, hpaCfg, applyOpts); err != nil {
		return fmt.Errorf("apply hpa: %w", err)
	}

	var urls []db.ManagedURL
	err := r.db.WithContext(ctx).
		Where("deployment_id = ? AND kind = ?", dep.ID, db.ManagedURLProxyToDeployment).
		Find(&urls).Error
	if err != nil {
		return fmt.Errorf("load managed urls: %w", err)
	}
	for _, u := range urls {
		ingressCfg := buildIngress(&dep, &u)
		if _, err := r.client.NetworkingV1().Ingresses(namespace).Apply(ctx, ingressCfg, applyOpts); err != nil {
			return fmt.Errorf("apply ingress %s: %w", u.ID, err)
		}
	}

	return nil
}

func (r *Reconciler) ensureNamespace(ctx context.Context, name string) error {
	nsCfg := corev1ac.Namespace(name)
	_, err := r.client.CoreV1().Namespaces().Apply(ctx, nsCfg, metav1.ApplyOptions{FieldManager: fieldManager, Force: true})
	return err
}

func buildDeployment(dep *db.Deployment, ports []db.DeploymentExposedPort, envs []db.DeploymentEnvironmentVariable, volumeMounts []db.DeploymentVolumeMount) *appsv1ac.DeploymentApplyConfiguration {
	name := objectName("deployment", dep.ID)
	labels := map[string]string{"patr.cloud/deployment-id": dep.ID}

	container := corev1ac.Container().
		WithName("app").
		WithImage(resolveImage(dep)).
		WithResources(machineTypeResources(dep.MachineTypeID))

	for _, p := range ports {
		container.WithPorts(corev1ac.ContainerPort().WithContainerPort(int32(p.Port)))
	}

	for _, e := range envs {
		env := corev1ac.EnvVar().WithName(e.Name)
		switch {
		case e.Value != nil:
			env.WithValue(*e.Value)
		case e.SecretID != nil:
			env.WithValueFrom(corev1ac.EnvVarSource().WithSecretKeyRef(
				corev1ac.SecretKeySelector().WithName(secretObjectName(*e.SecretID)).WithKey("value"),
			))
		}
		container.WithEnv(env)
	}

	if dep.StartupProbePort != nil {
		container.WithStartupProbe(probeFor(*dep.StartupProbePort, valueOr(dep.StartupProbePath, "/")))
	}
	if dep.LivenessProbePort != nil {
		container.WithLivenessProbe(probeFor(*dep.LivenessProbePort, valueOr(dep.LivenessProbePath, "/")))
	}

	podSpec := corev1ac.PodSpec().WithContainers(container)
	for _, vm := range volumeMounts {
		volumeName := "vol-" + vm.VolumeID
		container.WithVolumeMounts(corev1ac.VolumeMount().WithName(volumeName).WithMountPath(vm.MountPath))
		podSpec.WithVolumes(corev1ac.Volume().WithName(volumeName).WithPersistentVolumeClaim(
			corev1ac.PersistentVolumeClaimVolumeSource().WithClaimName(volumeObjectName(vm.VolumeID)),
		))
	}

	replicas := int32(dep.MinHorizontalScale)
	return appsv1ac.Deployment(name, dep.WorkspaceID).
		WithLabels(labels).
		WithSpec(appsv1ac.DeploymentSpec().
			WithReplicas(replicas).
			WithSelector(metav1ac.LabelSelector().WithMatchLabels(labels)).
			WithTemplate(corev1ac.PodTemplateSpec().
				WithLabels(labels).
				WithSpec(podSpec),
			),
		)
}

func buildService(dep *db.Deployment, ports []db.DeploymentExposedPort) *corev1ac.ServiceApplyConfiguration {
	name := objectName("service", dep.ID)
	labels := map[string]string{"patr.cloud/deployment-id": dep.ID}

	spec := corev1ac.ServiceSpec().WithSelector(labels)
	for _, p := range ports {
		spec.WithPorts(corev1ac.ServicePort().
			WithName(fmt.Sprintf("port-%d", p.Port)).
			WithPort(int32(p.Port)).
			WithTargetPort(intstr.FromInt(p.Port)).
			WithProtocol(corev1.ProtocolTCP),
		)
	}

	return corev1ac.Service(name, dep.WorkspaceID).WithLabels(labels).WithSpec(spec)
}

func buildHPA(dep *db.Deployment) *autoscalingv2ac.HorizontalPodAutoscalerApplyConfiguration {
	name := objectName("hpa", dep.ID)
	min := int32(dep.MinHorizontalScale)
	max := int32(dep.MaxHorizontalScale)
	if max < 1 {
		max = 1
	}
	cpuTarget := int32(75)

	return autoscalingv2ac.HorizontalPodAutoscaler(name, dep.WorkspaceID).
		WithSpec(autoscalingv2ac.HorizontalPodAutoscalerSpec().
			WithScaleTargetRef(autoscalingv2ac.CrossVersionObjectReference().
				WithAPIVersion("apps/v1").
				WithKind("Deployment").
				WithName(objectName("deployment", dep.ID)),
			).
			WithMinReplicas(min).
			WithMaxReplicas(max).
			WithMetrics(autoscalingv2ac.MetricSpec().
				WithType(autoscalingv2ac.ResourceMetricSourceType).
				WithResource(autoscalingv2ac.ResourceMetricSource().
					WithName(corev1.ResourceCPU).
					WithTarget(autoscalingv2ac.MetricTarget().
						WithType(autoscalingv2ac.UtilizationMetricType).
						WithAverageUtilization(cpuTarget),
					),
				),
			),
		)
}

func buildIngress(dep *db.Deployment, u *db.ManagedURL) *networkingv1ac.IngressApplyConfiguration {
	name := objectName("ingress", u.ID)
	port := 80
	if u.DeploymentPort != nil {
		port = *u.DeploymentPort
	}

	path := networkingv1ac.HTTPIngressPath().
		WithPath(u.Path).
		WithPathType(networkingv1.PathTypePrefix).
		WithBackend(networkingv1ac.IngressBackend().WithService(
			networkingv1ac.IngressServiceBackend().
				WithName(objectName("service", dep.ID)).
				WithPort(networkingv1ac.ServiceBackendPort().WithNumber(int32(port))),
		))

	rule := networkingv1ac.IngressRule().
		WithHost(u.SubDomain).
		WithHTTP(networkingv1ac.HTTPIngressRuleValue().WithPaths(path))

	return networkingv1ac.Ingress(name, dep.WorkspaceID).
		WithSpec(networkingv1ac.IngressSpec().WithRules(rule))
}

// teardown deletes the three workload-level primitives for a
// soft-deleted deployment, with foreground propagation so dependent
// pods go away before the call returns. Ingress rows are removed by
// their own managed-URL delete path, not here.
func (r *Reconciler) teardown(ctx context.Context, dep *db.Deployment) error {
	namespace := dep.WorkspaceID
	propagation := metav1.DeletePropagationForeground
	opts := metav1.DeleteOptions{PropagationPolicy: &propagation}

	if err := ignoreNotFoundErr(r.client.AppsV1().Deployments(namespace).Delete(ctx, objectName("deployment", dep.ID), opts)); err != nil {
		return err
	}
	if err := ignoreNotFoundErr(r.client.CoreV1().Services(namespace).Delete(ctx, objectName("service", dep.ID), opts)); err != nil {
		return err
	}
	if err := ignoreNotFoundErr(r.client.AutoscalingV2().HorizontalPodAutoscalers(namespace).Delete(ctx, objectName("hpa", dep.ID), opts)); err != nil {
		return err
	}
	return nil
}

func resolveImage(dep *db.Deployment) string {
	if dep.RegistryKind == db.RegistryKindExternal {
		return fmt.Sprintf("%s/%s:%s", dep.RegistryHost, dep.RegistryImage, dep.ImageTag)
	}
	if dep.CurrentLiveDigest != nil {
		return fmt.Sprintf("registry.patr.cloud/%s@%s", dep.RegistryRepoID, *dep.CurrentLiveDigest)
	}
	return fmt.Sprintf("registry.patr.cloud/%s:%s", dep.RegistryRepoID, dep.ImageTag)
}

func probeFor(port int, path string) *corev1ac.ProbeApplyConfiguration {
	return corev1ac.Probe().WithHTTPGet(
		corev1ac.HTTPGetAction().WithPath(path).WithPort(intstr.FromInt(port)),
	)
}

// machineTypeResources resolves a plan ID to container resource
// requests/limits. The machine-type catalog itself (spec section 4.5)
// is out of scope for this reconciler and not yet modeled as a table;
// this is a placeholder mapping until that catalog exists.
func machineTypeResources(machineTypeID string) *corev1ac.ResourceRequirementsApplyConfiguration {
	return corev1ac.ResourceRequirements().
		WithRequests(corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("100m"),
			corev1.ResourceMemory: resource.MustParse("128Mi"),
		}).
		WithLimits(corev1.ResourceList{
			corev1.ResourceCPU:    resource.MustParse("500m"),
			corev1.ResourceMemory: resource.MustParse("512Mi"),
		})
}

func objectName(prefix, id string) string { return fmt.Sprintf("%s-%s", prefix, id) }
func secretObjectName(id string) string   { return fmt.Sprintf("secret-%s", id) }
func volumeObjectName(id string) string   { return fmt.Sprintf("pvc-%s", id) }

func valueOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func ignoreNotFoundErr(err error) error {
	if k8serrors.IsNotFound(err) {
		return nil
	}
	return err
}
