// Package region implements C8's region controller: the daily
// connection probe, disconnected-region handler, and certificate
// revocation sweep from spec section 4.6, plus a database liveness
// sweep that reuses spec section 4.5's engine-ping primitive against
// BYOC-hosted managed databases.
package region

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/patr-cloud/patr-api/internal/db"
	"github.com/patr-cloud/patr-api/internal/dbping"
	repo "github.com/patr-cloud/patr-api/internal/repository/region"
)

// Reconciler is the narrow slice of internal/reconciler.Reconciler the
// controller needs: dropping a region's deployments reuses the same
// per-deployment teardown a deployment delete already triggers.
type Reconciler interface {
	EnqueueReconcile(ctx context.Context, deploymentID string) error
}

// ClientFactory builds a Kubernetes client from a region's stored
// kubeconfig bytes. Production wiring is clientcmd.RESTConfigFromKubeConfig
// plus kubernetes.NewForConfig; tests substitute a fake.
type ClientFactory func(kubeconfig []byte) (kubernetes.Interface, error)

// DefaultClientFactory parses a kubeconfig the way BYOC region
// onboarding already validates it at upload time (spec section 8's
// invariant 5, `ready ⇒ config_file != null`).
func DefaultClientFactory(kubeconfig []byte) (kubernetes.Interface, error) {
	restCfg, err := clientcmd.RESTConfigFromKubeConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

// Notifier delivers the disconnected-region reminder (spec section
// 4.6 job 2). No mailer/notification library exists anywhere in the
// example pack, so the default implementation logs structurally; a
// real deployment swaps in an SMTP/webhook implementation without the
// controller caring.
type Notifier interface {
	NotifyDaysRemaining(ctx context.Context, recipients []string, regionName string, daysRemaining int)
}

// LogNotifier is the Notifier used when no external channel is
// configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n *LogNotifier) NotifyDaysRemaining(ctx context.Context, recipients []string, regionName string, daysRemaining int) {
	n.Logger.Warn("region disconnected, pending cascade delete",
		zap.String("region", regionName),
		zap.Int("days_remaining", daysRemaining),
		zap.Strings("recipients", recipients),
	)
}

// Controller owns the four scheduled jobs.
type Controller struct {
	db            *gorm.DB
	repo          *repo.Repository
	reconciler    Reconciler
	clients       ClientFactory
	notifier      Notifier
	certRevoker   CertRevoker
	gracePeriod   time.Duration
	rateLimit     time.Duration
	probeRetry    int
	logger        *zap.Logger
}

// probeRetryCount defaults to 1 (no retry) when the caller passes a
// non-positive value, so a zero-valued config never silently disables
// the probe.
func New(database *gorm.DB, reconciler Reconciler, clients ClientFactory, notifier Notifier, certRevoker CertRevoker, gracePeriodDays int, rateLimitMS int, probeRetryCount int, logger *zap.Logger) *Controller {
	if probeRetryCount < 1 {
		probeRetryCount = 1
	}
	return &Controller{
		db:          database,
		repo:        repo.NewRepository(),
		reconciler:  reconciler,
		clients:     clients,
		notifier:    notifier,
		certRevoker: certRevoker,
		gracePeriod: time.Duration(gracePeriodDays) * 24 * time.Hour,
		rateLimit:   time.Duration(rateLimitMS) * time.Millisecond,
		probeRetry:  probeRetryCount,
		logger:      logger,
	}
}

// ConnectionProbe is spec section 4.6 job 1, scheduled daily at 03:00.
func (c *Controller) ConnectionProbe(ctx context.Context) {
	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		c.logger.Error("connection probe: begin transaction", zap.Error(tx.Error))
		return
	}
	defer tx.Rollback()

	regions, err := c.repo.ActiveBYOC(ctx, tx)
	if err != nil {
		c.logger.Error("connection probe: list active regions", zap.Error(err))
		return
	}

	for _, r := range regions {
		hostname, stored, err := c.probeWithRetry(ctx, &r)
		if err != nil || hostname != stored {
			if err != nil {
				c.logger.Warn("connection probe: resolve failed after retries, marking disconnected",
					zap.String("region_id", r.ID), zap.Int("attempts", c.probeRetry), zap.Error(err))
			} else {
				c.logger.Warn("connection probe: ingress hostname mismatch, marking disconnected", zap.String("region_id", r.ID), zap.String("stored", stored), zap.String("resolved", hostname))
			}
			if err := c.repo.MarkDisconnected(ctx, tx, r.ID); err != nil {
				c.logger.Error("connection probe: mark disconnected", zap.String("region_id", r.ID), zap.Error(err))
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		c.logger.Error("connection probe: commit", zap.Error(err))
	}
}

// DisconnectedRegionHandler is spec section 4.6 job 2, scheduled daily
// at 06:00.
func (c *Controller) DisconnectedRegionHandler(ctx context.Context) {
	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		c.logger.Error("disconnected handler: begin transaction", zap.Error(tx.Error))
		return
	}
	defer tx.Rollback()

	regions, err := c.repo.Disconnected(ctx, tx)
	if err != nil {
		c.logger.Error("disconnected handler: list disconnected regions", zap.Error(err))
		return
	}

	for _, r := range regions {
		hostname, probeErr := c.resolveIngressHostname(ctx, &r)
		stored := ""
		if r.IngressHostname != nil {
			stored = *r.IngressHostname
		}
		if probeErr == nil && hostname == stored {
			if err := c.repo.MarkActive(ctx, tx, r.ID); err != nil {
				c.logger.Error("disconnected handler: mark active", zap.String("region_id", r.ID), zap.Error(err))
			}
			continue
		}

		if r.DisconnectedAt == nil {
			continue
		}
		since := time.Since(*r.DisconnectedAt)
		if since >= c.gracePeriod {
			if err := c.cascadeDelete(ctx, tx, &r); err != nil {
				c.logger.Error("disconnected handler: cascade delete", zap.String("region_id", r.ID), zap.Error(err))
			}
			continue
		}

		daysRemaining := int(c.gracePeriod.Hours()/24) - int(since.Hours()/24)
		if r.WorkspaceID != nil {
			emails, err := c.repo.WorkspaceAlertEmails(ctx, tx, *r.WorkspaceID)
			if err != nil {
				c.logger.Error("disconnected handler: lookup alert emails", zap.String("region_id", r.ID), zap.Error(err))
				continue
			}
			c.notifier.NotifyDaysRemaining(ctx, emails, r.Name, daysRemaining)
		}
	}

	if err := tx.Commit().Error; err != nil {
		c.logger.Error("disconnected handler: commit", zap.Error(err))
	}
}

// cascadeDelete soft-deletes every deployment in the region and enqueues
// its teardown, then marks the region deleted.
func (c *Controller) cascadeDelete(ctx context.Context, tx *gorm.DB, r *db.DeploymentRegion) error {
	deployments, err := c.repo.DeploymentsInRegion(ctx, tx, r.ID)
	if err != nil {
		return err
	}
	for _, d := range deployments {
		if err := c.repo.SoftDeleteDeployment(ctx, tx, d.ID); err != nil {
			return err
		}
		if c.reconciler != nil {
			if err := c.reconciler.EnqueueReconcile(ctx, d.ID); err != nil {
				c.logger.Warn("cascade delete: enqueue teardown failed", zap.String("deployment_id", d.ID), zap.Error(err))
			}
		}
	}
	return c.repo.MarkDeleted(ctx, tx, r.ID)
}

// CertificateRevocationSweep is spec section 4.6 job 3, scheduled daily
// at 09:00. Calls are rate-limited by c.rateLimit between every CA
// request, per the CA's 1200-req/5-min budget.
func (c *Controller) CertificateRevocationSweep(ctx context.Context) {
	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		c.logger.Error("cert sweep: begin transaction", zap.Error(tx.Error))
		return
	}
	defer tx.Rollback()

	regions, err := c.repo.RevocationCandidates(ctx, tx)
	if err != nil {
		c.logger.Error("cert sweep: list candidates", zap.Error(err))
		return
	}

	for i, r := range regions {
		if i > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.rateLimit):
			}
		}

		err := c.certRevoker.Revoke(ctx, r.CloudflareCertificateID)
		switch {
		case err == nil, isAlreadyRevoked(err):
			if markErr := c.repo.MarkCertificateRevoked(ctx, tx, r.ID); markErr != nil {
				c.logger.Error("cert sweep: mark revoked", zap.String("region_id", r.ID), zap.Error(markErr))
			}
		default:
			c.logger.Warn("cert sweep: revoke failed, retrying next run", zap.String("region_id", r.ID), zap.Error(err))
		}
	}

	if err := tx.Commit().Error; err != nil {
		c.logger.Error("cert sweep: commit", zap.Error(err))
	}
}

// DatabaseLivenessCheck pings every running managed database hosted in
// an active BYOC region and marks it errored if the engine doesn't
// answer — a region can stay connected (ConnectionProbe only checks the
// Kubernetes API) while the database workload inside it has crashed or
// lost its volume, so this is a separate signal from job 1.
func (c *Controller) DatabaseLivenessCheck(ctx context.Context) {
	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		c.logger.Error("database liveness: begin transaction", zap.Error(tx.Error))
		return
	}
	defer tx.Rollback()

	regions, err := c.repo.ActiveBYOC(ctx, tx)
	if err != nil {
		c.logger.Error("database liveness: list active regions", zap.Error(err))
		return
	}
	regionIDs := make([]string, len(regions))
	for i, r := range regions {
		regionIDs[i] = r.ID
	}
	if len(regionIDs) == 0 {
		return
	}

	var databases []db.ManagedDatabase
	err = tx.Where("region_id IN ? AND status = ? AND deleted_at IS NULL", regionIDs, db.ManagedDatabaseStatusRunning).
		Find(&databases).Error
	if err != nil {
		c.logger.Error("database liveness: list managed databases", zap.Error(err))
		return
	}

	for _, mdb := range databases {
		err := dbping.Ping(ctx, dbping.Target{
			Engine: mdb.Engine, Host: mdb.Host, Port: mdb.Port, DBName: mdb.DBName, Username: mdb.Username,
		})
		if err != nil {
			c.logger.Warn("database liveness: ping failed, marking errored",
				zap.String("database_id", mdb.ID), zap.String("region_id", mdb.RegionID), zap.Error(err))
			updateErr := tx.Model(&db.ManagedDatabase{}).Where("id = ?", mdb.ID).
				Update("status", db.ManagedDatabaseStatusErrored).Error
			if updateErr != nil {
				c.logger.Error("database liveness: mark errored", zap.String("database_id", mdb.ID), zap.Error(updateErr))
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		c.logger.Error("database liveness: commit", zap.Error(err))
	}
}

func (c *Controller) resolveIngressHostname(ctx context.Context, r *db.DeploymentRegion) (string, error) {
	client, err := c.clients(r.ConfigFile)
	if err != nil {
		return "", err
	}
	return IngressControllerHostname(ctx, client)
}

// probeWithRetry resolves a region's ingress hostname, tolerating up to
// c.probeRetry-1 transient failures before giving up — a region with a
// flaky API server shouldn't be marked disconnected on a single missed
// probe (spec section 4.6's probe_retry grace window).
func (c *Controller) probeWithRetry(ctx context.Context, r *db.DeploymentRegion) (hostname, stored string, err error) {
	if r.IngressHostname != nil {
		stored = *r.IngressHostname
	}
	for attempt := 0; attempt < c.probeRetry; attempt++ {
		hostname, err = c.resolveIngressHostname(ctx, r)
		if err == nil {
			return hostname, stored, nil
		}
		if attempt < c.probeRetry-1 {
			select {
			case <-ctx.Done():
				return "", stored, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
	return "", stored, err
}
