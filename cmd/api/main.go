package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v39/github"
	"github.com/patr-cloud/patr-api/internal/api/routes"
	"github.com/patr-cloud/patr-api/internal/authn"
	"github.com/patr-cloud/patr-api/internal/cache"
	"github.com/patr-cloud/patr-api/internal/ci"
	"github.com/patr-cloud/patr-api/internal/config"
	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/endpoint"
	"github.com/patr-cloud/patr-api/internal/rbac"
	"github.com/patr-cloud/patr-api/internal/reconciler"
	apitokenrepo "github.com/patr-cloud/patr-api/internal/repository/apitoken"
	cirepo "github.com/patr-cloud/patr-api/internal/repository/ci"
	deploymentrepo "github.com/patr-cloud/patr-api/internal/repository/deployment"
	domainrepo "github.com/patr-cloud/patr-api/internal/repository/domain"
	manageddbrepo "github.com/patr-cloud/patr-api/internal/repository/manageddatabase"
	managedurlrepo "github.com/patr-cloud/patr-api/internal/repository/managedurl"
	regiondomainrepo "github.com/patr-cloud/patr-api/internal/repository/region"
	secretrepo "github.com/patr-cloud/patr-api/internal/repository/secret"
	staticsiterepo "github.com/patr-cloud/patr-api/internal/repository/staticsite"
	apitokensvc "github.com/patr-cloud/patr-api/internal/service/apitoken"
	deploymentsvc "github.com/patr-cloud/patr-api/internal/service/deployment"
	domainsvc "github.com/patr-cloud/patr-api/internal/service/domain"
	manageddbsvc "github.com/patr-cloud/patr-api/internal/service/manageddatabase"
	managedurlsvc "github.com/patr-cloud/patr-api/internal/service/managedurl"
	regionsvc "github.com/patr-cloud/patr-api/internal/service/region"
	secretsvc "github.com/patr-cloud/patr-api/internal/service/secret"
	staticsitesvc "github.com/patr-cloud/patr-api/internal/service/staticsite"
	"github.com/patr-cloud/patr-api/internal/vault"
	"github.com/xanzy/go-gitlab"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	// Connect to database
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
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run migrations
	if err := db.MigrateDatabase(database); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// Initialize Gin router
	if cfg.Server.Host == "0.0.0.0" && os.Getenv("GIN_MODE") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	
	// Add middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	
	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		
		c.Next()
	})

	// Health check endpoint (basic - doesn't require DB)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "0.1.0",
		})
	})

	// Readiness check endpoint (requires DB)
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := database.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"error":  "database connection error",
			})
			return
		}
		
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready", 
				"error":  "database ping failed",
			})
			return
		}
		
		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	// Initialize Kubernetes client
	var k8sConfig *rest.Config
	var k8sClient kubernetes.Interface
	var dynamicClient dynamic.Interface

	// Try to use in-cluster config first
	k8sConfig, err = rest.InClusterConfig()
	if err != nil {
		// Fall back to kubeconfig
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

		dynamicClient, err = dynamic.NewForConfig(k8sConfig)
		if err != nil {
			logger.Warn("Failed to create dynamic Kubernetes client", zap.Error(err))
		}
	}

	_ = dynamicClient // reserved for a future dynamic-resource reconciler; not read by the wiring below

	// Wire the C3 endpoint framework and its first representative
	// resource service (C6: deployment create/update), plus the C7
	// reconciler that converges the cluster onto each deployment's
	// desired state.
	cacheClient, err := cache.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("Failed to connect to cache", zap.Error(err))
	}

	hasher := authn.NewHasher(cfg.Auth.PasswordPepper)
	tokenManager := authn.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, time.Duration(cfg.Auth.AccessTokenTTLSecs)*time.Second)
	apiTokenValidator := authn.NewApiTokenValidator(hasher, cacheClient, time.Duration(cfg.Auth.APITokenCacheTTLSecs)*time.Second)
	validator := authn.NewValidator(tokenManager, apiTokenValidator, cacheClient)
	rbacEngine := rbac.NewEngine()

	endpointDeps := endpoint.Deps{DB: database, Cache: cacheClient, Validator: validator, RBAC: rbacEngine}

	// depReconciler stays a nil interface (not a nil *Reconciler boxed in
	// a non-nil interface) when no cluster is reachable, so the
	// service's "s.reconciler != nil" check works as intended.
	var depReconciler deploymentsvc.Reconciler
	if k8sClient != nil {
		concreteReconciler := reconciler.New(k8sClient, database, logger)
		reconcileCtx, cancelReconcile := context.WithCancel(context.Background())
		defer cancelReconcile()
		concreteReconciler.Start(reconcileCtx, 4)
		depReconciler = concreteReconciler
	} else {
		logger.Warn("Kubernetes client unavailable; deployment reconciliation is disabled")
	}

	deploymentService := deploymentsvc.NewService(deploymentrepo.NewRepository(), cacheClient, depReconciler)
	routes.RegisterDeploymentRoutes(router, endpointDeps, deploymentService)

	// Wire C9's webhook ingestion: a content fetcher per git provider,
	// backed by the app-level tokens in CIConfig, and the handler that
	// runs spec section 4.7's ten steps against one webhook request.
	fetchers := ci.ContentFetcherByProvider{}
	if cfg.CI.GitHubToken != "" {
		ghHTTPClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.CI.GitHubToken}))
		fetchers[db.CIProviderGitHub] = ci.NewGitHubFetcher(github.NewClient(ghHTTPClient))
	}
	if cfg.CI.GitLabToken != "" {
		glOpts := []gitlab.ClientOptionFunc{}
		if cfg.CI.GitLabBaseURL != "" {
			glOpts = append(glOpts, gitlab.WithBaseURL(cfg.CI.GitLabBaseURL))
		}
		glClient, err := gitlab.NewClient(cfg.CI.GitLabToken, glOpts...)
		if err != nil {
			logger.Warn("Failed to create GitLab client", zap.Error(err))
		} else {
			fetchers[db.CIProviderGitLab] = ci.NewGitLabFetcher(glClient)
		}
	}
	ciHandler := ci.NewHandler(cirepo.NewRepository(), fetchers)
	routes.RegisterCIWebhookRoutes(router, endpointDeps, ciHandler)

	// Wire the user-scoped API-token lifecycle (spec section 4.2).
	apiTokenService := apitokensvc.NewService(apitokenrepo.NewRepository(), hasher, cacheClient)
	routes.RegisterApiTokenRoutes(router, endpointDeps, apiTokenService)

	// Wire the managed-database create/list/delete surface (spec section
	// 4.8); provisioning/teardown itself runs out of band in the
	// reconciler's periodic sweep (cmd/worker).
	managedDatabaseService := manageddbsvc.NewService(manageddbrepo.NewRepository())
	routes.RegisterManagedDatabaseRoutes(router, endpointDeps, managedDatabaseService)

	// Wire the managed-URL ingress routing CRUD surface (spec section 4.9).
	managedURLService := managedurlsvc.NewService(managedurlrepo.NewRepository())
	routes.RegisterManagedURLRoutes(router, endpointDeps, managedURLService)

	// Wire the secret lifecycle (spec section 4.4.4): metadata in
	// Postgres, value in the external KV vault.
	vaultClient := vault.NewClient(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.MountPath)
	secretService := secretsvc.NewService(secretrepo.NewRepository(), vaultClient)
	routes.RegisterSecretRoutes(router, endpointDeps, secretService)

	// Wire the BYOC region registration surface (spec section 4.6); the
	// connection-probe/disconnect/revocation status machine itself is
	// internal/region's scheduler, started separately in cmd/worker.
	regionService := regionsvc.NewService(regiondomainrepo.NewRepository())
	routes.RegisterRegionRoutes(router, endpointDeps, regionService)

	// Wire the static-site create/list/upload/delete surface (spec
	// section 4.5).
	staticSiteService := staticsitesvc.NewService(staticsiterepo.NewRepository())
	routes.RegisterStaticSiteRoutes(router, endpointDeps, staticSiteService)

	// Wire the domain and DNS-record CRUD surface (spec section 4.10).
	domainService := domainsvc.NewService(domainrepo.NewRepository())
	routes.RegisterDomainRoutes(router, endpointDeps, domainService)

	// Wire the interactive-session lifecycle (spec section 4.2):
	// sign-up/complete-sign-up, login, logout, and access-token renewal.
	signUpService := authn.NewSignUpService(hasher, time.Duration(cfg.Auth.SignUpOTPTTLSecs)*time.Second)
	geolocator := authn.NewIPInfoGeolocator(cfg.Auth.IPInfoBaseURL, cfg.Auth.IPInfoToken)
	loginService := authn.NewLoginService(hasher, tokenManager, geolocator, cfg.Auth.AllowPrivateIPs, time.Duration(cfg.Auth.RefreshTokenTTLSecs)*time.Second)
	refreshService := authn.NewRefreshService(hasher, tokenManager, cacheClient)
	routes.RegisterAuthRoutes(router, endpointDeps, signUpService, loginService, refreshService, time.Duration(cfg.Auth.RefreshTokenTTLSecs)*time.Second)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", 
			zap.String("address", srv.Addr),
			zap.String("environment", gin.Mode()),
		)
		
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	
	logger.Info("Shutting down server...")

	// Give outstanding requests 30 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}