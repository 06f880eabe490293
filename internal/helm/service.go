// Package helm provides a service for programmatic Helm operations,
// used by the Kubernetes reconciler to render the managed-database
// StatefulSet chart (spec section 4.5) instead of hand-assembling
// client-go apply configurations the way the deployment reconciler
// does for Deployment/Service/HPA/Ingress.
package helm

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart"
	"k8s.io/client-go/rest"
)

// Service defines the interface for Helm operations against one
// cluster's REST config.
type Service interface {
	InstallOrUpgradeChart(releaseName string, ch *chart.Chart, namespace string, values map[string]interface{}) error
	Uninstall(releaseName, namespace string) error
}

// helmService implements the Service interface.
type helmService struct {
	cfg    *rest.Config
	logger *zap.Logger
}

// NewService creates a new Helm service bound to one cluster's config.
func NewService(cfg *rest.Config, logger *zap.Logger) Service {
	return &helmService{cfg: cfg, logger: logger}
}

func (s *helmService) newActionConfig(namespace string) (*action.Configuration, error) {
	actionConfig := new(action.Configuration)
	debugLog := func(format string, v ...interface{}) {
		s.logger.Debug("helm client", zap.String("message", fmt.Sprintf(format, v...)))
	}
	getter := newRESTClientGetter(s.cfg)
	if err := actionConfig.Init(getter, namespace, os.Getenv("HELM_DRIVER"), debugLog); err != nil {
		return nil, err
	}
	return actionConfig, nil
}

// InstallOrUpgradeChart performs a Helm install or upgrade for an
// already-loaded chart (the managed-database chart is compiled into the
// binary via go:embed rather than read from a path — see
// LoadManagedDatabaseChart).
func (s *helmService) InstallOrUpgradeChart(releaseName string, ch *chart.Chart, namespace string, values map[string]interface{}) error {
	actionConfig, err := s.newActionConfig(namespace)
	if err != nil {
		s.logger.Error("failed to initialize Helm action config", zap.Error(err))
		return err
	}

	histClient := action.NewHistory(actionConfig)
	histClient.Max = 1
	if _, err := histClient.Run(releaseName); err == nil {
		s.logger.Info("release exists, upgrading chart", zap.String("release", releaseName))
		upgrade := action.NewUpgrade(actionConfig)
		upgrade.Namespace = namespace
		upgrade.Install = true
		upgrade.MaxHistory = 5

		if _, err := upgrade.Run(releaseName, ch, values); err != nil {
			s.logger.Error("helm upgrade failed", zap.String("release", releaseName), zap.Error(err))
			return err
		}
		s.logger.Info("helm upgrade successful", zap.String("release", releaseName))
		return nil
	}

	s.logger.Info("release does not exist, installing chart", zap.String("release", releaseName))
	install := action.NewInstall(actionConfig)
	install.ReleaseName = releaseName
	install.Namespace = namespace
	install.CreateNamespace = true

	if _, err := install.Run(ch, values); err != nil {
		s.logger.Error("helm install failed", zap.String("release", releaseName), zap.Error(err))
		return err
	}
	s.logger.Info("helm install successful", zap.String("release", releaseName))
	return nil
}

// Uninstall removes a release, the teardown counterpart to
// InstallOrUpgradeChart for a deleted managed database.
func (s *helmService) Uninstall(releaseName, namespace string) error {
	actionConfig, err := s.newActionConfig(namespace)
	if err != nil {
		s.logger.Error("failed to initialize Helm action config", zap.Error(err))
		return err
	}
	uninstall := action.NewUninstall(actionConfig)
	if _, err := uninstall.Run(releaseName); err != nil {
		s.logger.Error("helm uninstall failed", zap.String("release", releaseName), zap.Error(err))
		return err
	}
	s.logger.Info("helm uninstall successful", zap.String("release", releaseName))
	return nil
}
