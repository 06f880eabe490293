package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/config"
	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/helm"
	"github.com/patr-cloud/patr-api/internal/reconciler"
	"github.com/patr-cloud/patr-api/internal/region"
)

var logger *zap.Logger

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	root := &cobra.Command{
		Use:   "worker",
		Short: "Patr background worker: the region controller's scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "region-controller-once",
		Short: "Run the region controller's four jobs once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce()
		},
	})

	if err := root.Execute(); err != nil {
		logger.Fatal("worker exited with error", zap.Error(err))
	}
}

func setup() (*region.Scheduler, func(), error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	dbConfig := &db.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}
	database, err := db.ConnectDatabase(dbConfig)
	if err != nil {
		return nil, nil, err
	}

	var k8sConfig *rest.Config
	var k8sClient kubernetes.Interface

	k8sConfig, err = rest.InClusterConfig()
	if err != nil {
		kubeconfigPath := os.Getenv("KUBECONFIG")
		if kubeconfigPath == "" {
			kubeconfigPath = os.Getenv("HOME") + "/.kube/config"
		}
		k8sConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			logger.Warn("Failed to initialize Kubernetes client", zap.Error(err))
		}
	}
	if k8sConfig != nil {
		k8sClient, err = kubernetes.NewForConfig(k8sConfig)
		if err != nil {
			logger.Warn("Failed to create Kubernetes client", zap.Error(err))
		}
	}

	var depReconciler region.Reconciler
	reconcileCtx, cancelReconcile := context.WithCancel(context.Background())
	if k8sClient != nil {
		concreteReconciler := reconciler.New(k8sClient, database, logger)
		helmSvc := helm.NewService(k8sConfig, logger)
		hasher := authn.NewHasher(cfg.Auth.PasswordPepper)
		concreteReconciler.WithDatabaseProvisioning(helmSvc, hasher)
		concreteReconciler.Start(reconcileCtx, 2)
		concreteReconciler.StartDriftRepair(reconcileCtx, 30*time.Minute)
		concreteReconciler.StartDatabaseProvisioning(reconcileCtx, time.Minute)
		depReconciler = concreteReconciler
	} else {
		logger.Warn("Kubernetes client unavailable; region cascade-delete teardown is disabled")
	}

	clientFactory := region.DefaultClientFactory
	notifier := &region.LogNotifier{Logger: logger}
	certRevoker := region.NewCloudflareRevoker(cfg.Region.CloudflareAPIBase, cfg.Region.CloudflareAPIToken)

	controller := region.New(database, depReconciler, clientFactory, notifier, certRevoker,
		cfg.Region.DisconnectGracePeriodDays, cfg.Region.CertCARateLimitDelayMS, cfg.Region.ProbeRetryCount, logger)
	scheduler := region.NewScheduler(controller)

	return scheduler, cancelReconcile, nil
}

func serve() error {
	scheduler, cancel, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	scheduler.Start(ctx)

	logger.Info("Worker started: region controller scheduled jobs running at 03:00/04:00/06:00/09:00 daily")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Worker shutting down...")
	stop()
	logger.Info("Worker exited")
	return nil
}

func runOnce() error {
	scheduler, cancel, err := setup()
	if err != nil {
		return err
	}
	defer cancel()

	logger.Info("Running region controller jobs once")
	scheduler.RunOnce(context.Background())
	logger.Info("Region controller one-shot run complete")
	return nil
}
