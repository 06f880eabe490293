package ci

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/patr-cloud/patr-api/internal/apierror"
	"github.com/patr-cloud/patr-api/internal/db"
	cirepo "github.com/patr-cloud/patr-api/internal/repository/ci"
)

// EventHeader is the closed set of provider event names this dispatch
// table recognizes (spec section 4.7 step 4).
type EventHeader string

const (
	HeaderPush         EventHeader = "push"
	HeaderPROpened     EventHeader = "pr_opened"
	HeaderPRSynchronize EventHeader = "pr_synchronize"
	HeaderPing         EventHeader = "ping"
)

// Event is the parsed webhook payload the dispatch table needs.
type Event struct {
	Header    EventHeader
	Ref       string
	AfterSHA  string
	Signature string
	RawBody   []byte
}

// Handler implements the ten steps of spec section 4.7 against one
// inbound webhook request.
type Handler struct {
	repo    *cirepo.Repository
	fetcher ContentFetcherByProvider
}

// ContentFetcherByProvider resolves the right fetcher for a repo's
// provider; production wiring holds one GitHubFetcher/GitLabFetcher
// pair keyed by db.CIGitProvider.
type ContentFetcherByProvider map[db.CIGitProvider]ContentFetcher

func NewHandler(repo *cirepo.Repository, fetchers ContentFetcherByProvider) *Handler {
	return &Handler{repo: repo, fetcher: fetchers}
}

// HandleWebhook runs the full ingestion pipeline. A nil error with
// handled=false means "acknowledge with 200, no side effect" (ping, a
// branch delete); handled=true means a build was materialized.
func (h *Handler) HandleWebhook(ctx context.Context, tx *gorm.DB, ciRepoID string, event Event) (handled bool, err error) {
	repo, err := h.repo.GetByID(ctx, tx, ciRepoID)
	if err != nil {
		return false, err
	}
	if !repo.Activated {
		return false, apierror.New(apierror.CodeResourceDoesNotExist, "repository is not active")
	}

	if !verifySignature(repo.WebhookSecret, event.RawBody, event.Signature) {
		return false, apierror.New(apierror.CodeUnauthorized, "webhook signature mismatch")
	}

	if event.Header == HeaderPing {
		return false, nil
	}
	if event.AfterSHA == "" {
		return false, nil
	}

	eventKind, branchOrTag, err := classifyRef(event.Ref)
	if err != nil {
		return false, apierror.Server(err)
	}

	fetcher, ok := h.fetcher[repo.Provider]
	if !ok {
		return false, apierror.Server(fmt.Errorf("no content fetcher configured for provider %q", repo.Provider))
	}
	raw, err := fetcher.FetchFile(ctx, repo, event.AfterSHA, "patr.yml")
	if err != nil {
		return false, apierror.Server(err)
	}

	build := &db.CIBuild{CIRepoID: repo.ID, CommitSHA: event.AfterSHA, BranchName: branchOrTag, Status: db.BuildStatusRunning}
	if err := h.repo.CreateBuild(ctx, tx, build); err != nil {
		return false, err
	}

	pipeline, parseErr := ParsePipeline(raw)
	if parseErr == nil {
		secretsByName, secretErr := h.repo.WorkspaceSecretsByName(ctx, tx, repo.WorkspaceID)
		if secretErr == nil {
			parseErr = pipeline.Validate(secretsByName)
		} else {
			parseErr = secretErr
		}
	}
	if parseErr != nil {
		return true, h.repo.MarkBuildErrored(ctx, tx, build.ID)
	}

	works, err := pipeline.MaterializeWorks(branchOrTag, eventKind)
	if err != nil {
		return true, h.repo.MarkBuildErrored(ctx, tx, build.ID)
	}

	steps := make([]db.CIStep, 0, len(works)+1)
	steps = append(steps, db.CIStep{BuildID: build.ID, Name: "git-clone", Sequence: 0, Status: db.StepStatusWaitingToStart})
	for i, w := range works {
		steps = append(steps, db.CIStep{BuildID: build.ID, Name: w.Name, Sequence: i + 1, Status: db.StepStatusWaitingToStart})
	}
	if err := h.repo.CreateSteps(ctx, tx, steps); err != nil {
		return false, err
	}

	return true, nil
}

// classifyRef derives the EventType tagged record from spec section
// 4.7 step 5: commit on refs/heads/*, tag on refs/tags/*, else an
// unexpected-ref server error.
func classifyRef(ref string) (EventKind, string, error) {
	switch {
	case strings.HasPrefix(ref, "refs/heads/"):
		return EventCommit, strings.TrimPrefix(ref, "refs/heads/"), nil
	case strings.HasPrefix(ref, "refs/tags/"):
		return EventTag, strings.TrimPrefix(ref, "refs/tags/"), nil
	default:
		return "", "", fmt.Errorf("unexpected ref %q", ref)
	}
}

// verifySignature compares HMAC_SHA256(secret, body) against sig
// ("sha256=<hex>") in constant time.
func verifySignature(secret string, body []byte, sig string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(sig, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(sig, prefix)))
}
