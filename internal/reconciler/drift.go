package reconciler

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"go.uber.org/zap"

	"github.com/patr-cloud/patr-api/internal/db"
)

// deploymentIDLabel is the selector label this reconciler puts on the
// Deployment and Service objects it applies (buildDeployment/buildService);
// the HPA and Ingress objects do not carry it.
const deploymentIDLabel = "patr.cloud/deployment-id"

// DriftRepair lists every labelled Deployment object this reconciler owns,
// tears down ones whose deployment no longer exists (or was soft-deleted),
// and runs Reconcile directly for any live, non-deleted deployment missing
// its Deployment object — the scheduled counterpart to the per-request
// Reconcile call, for drift that accumulates between requests (a
// manually edited object, a reconcile that crashed mid-apply, a stuck
// worker that silently dropped its queue entry).
func (r *Reconciler) DriftRepair(ctx context.Context) error {
	namespaces, err := r.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}

	for _, ns := range namespaces.Items {
		if err := r.driftRepairNamespace(ctx, ns.Name); err != nil {
			r.logger.Error("drift repair failed for namespace", zap.String("namespace", ns.Name), zap.Error(err))
		}
	}
	return nil
}

func (r *Reconciler) driftRepairNamespace(ctx context.Context, namespace string) error {
	selector := metav1.ListOptions{LabelSelector: deploymentIDLabel}

	deployments, err := r.client.AppsV1().Deployments(namespace).List(ctx, selector)
	if err != nil {
		return fmt.Errorf("list deployments: %w", err)
	}

	present := make(map[string]bool, len(deployments.Items))
	for _, d := range deployments.Items {
		id := d.Labels[deploymentIDLabel]
		if id == "" {
			continue
		}
		present[id] = true

		var dep db.Deployment
		err := r.db.WithContext(ctx).Where("id = ?", id).First(&dep).Error
		orphaned := err != nil || dep.Status == db.DeploymentStatusDeleted
		if orphaned {
			r.logger.Warn("deleting orphaned deployment object", zap.String("deployment_id", id), zap.String("namespace", namespace))
			if delErr := r.teardown(ctx, &db.Deployment{ID: id, WorkspaceID: namespace}); delErr != nil {
				return fmt.Errorf("teardown orphan %s: %w", id, delErr)
			}
		}
	}

	var active []db.Deployment
	err = r.db.WithContext(ctx).
		Where("workspace_id = ? AND status != ?", namespace, db.DeploymentStatusDeleted).
		Find(&active).Error
	if err != nil {
		return fmt.Errorf("load active deployments: %w", err)
	}
	for _, dep := range active {
		if present[dep.ID] {
			continue
		}
		r.logger.Warn("recreating missing deployment object", zap.String("deployment_id", dep.ID), zap.String("namespace", namespace))
		if err := r.Reconcile(ctx, dep.ID); err != nil {
			return fmt.Errorf("recreate %s: %w", dep.ID, err)
		}
	}

	return nil
}
