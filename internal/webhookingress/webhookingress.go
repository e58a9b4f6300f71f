// Package webhookingress is the Webhook Ingress (spec component J): it
// authenticates inbound GitHub/GitLab push webhooks, decides whether the
// pushed branch matches the application's configured branch, and — on a
// match — enqueues a deployment through the orchestrator. Every delivery is
// recorded, successful or not, following the teacher's
// internal/api/github_webhook.go's log-then-act shape.
package webhookingress

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/GLINCKER/glinrdock/internal/apperror"
	"github.com/GLINCKER/glinrdock/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Orchestrator is the subset of internal/deploy.Orchestrator the ingress
// handler needs.
type Orchestrator interface {
	Enqueue(ctx context.Context, applicationID int64, trigger string) (store.Deployment, error)
}

// Handler receives webhook POST requests at /webhooks/github and
// /webhooks/gitlab, with the application id in the app_id query parameter.
type Handler struct {
	store        *store.Store
	orchestrator Orchestrator
}

// New creates a Handler.
func New(st *store.Store, orchestrator Orchestrator) *Handler {
	return &Handler{store: st, orchestrator: orchestrator}
}

// githubPushPayload is the subset of a GitHub push event payload used to
// decide whether a deployment should be triggered.
type githubPushPayload struct {
	Ref     string `json:"ref"`
	HeadCommit struct {
		ID      string `json:"id"`
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"head_commit"`
}

// gitlabPushPayload is the subset of a GitLab push event payload used.
type gitlabPushPayload struct {
	Ref        string `json:"ref"`
	CheckoutSHA string `json:"checkout_sha"`
	Commits    []struct {
		Message string `json:"message"`
		Author  struct {
			Name string `json:"name"`
		} `json:"author"`
	} `json:"commits"`
}

// Handle processes one inbound webhook request for the application named
// by the app_id query parameter (spec.md §6.1: "POST /webhooks/github?app_id=…").
func (h *Handler) Handle(c *gin.Context) {
	ctx := c.Request.Context()

	appIDStr := c.Query("app_id")
	app, err := h.store.GetApplication(ctx, parseID(appIDStr))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "application not found"})
		return
	}

	webhook, err := h.store.GetWebhook(ctx, app.ID)
	if err != nil || !webhook.Enabled {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook not configured"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	var branch, commitSHA, commitMessage, author string
	var verifyErr error

	switch webhook.Provider {
	case store.ProviderGitHub:
		verifyErr = verifyGitHubSignature(body, c.GetHeader("X-Hub-Signature-256"), webhook.Secret)
		if verifyErr == nil {
			var payload githubPushPayload
			if err := json.Unmarshal(body, &payload); err == nil {
				branch = refToBranch(payload.Ref)
				commitSHA = payload.HeadCommit.ID
				commitMessage = payload.HeadCommit.Message
				author = payload.HeadCommit.Author.Name
			}
		}
	case store.ProviderGitLab:
		verifyErr = verifyGitLabToken(c.GetHeader("X-Gitlab-Token"), webhook.Secret)
		if verifyErr == nil {
			var payload gitlabPushPayload
			if err := json.Unmarshal(body, &payload); err == nil {
				branch = refToBranch(payload.Ref)
				commitSHA = payload.CheckoutSHA
				if len(payload.Commits) > 0 {
					commitMessage = payload.Commits[0].Message
					author = payload.Commits[0].Author.Name
				}
			}
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported webhook provider"})
		return
	}

	delivery := store.WebhookDelivery{
		ApplicationID: app.ID,
		Provider:      webhook.Provider,
		EventType:     "push",
	}
	if branch != "" {
		delivery.Branch = &branch
	}
	if commitSHA != "" {
		delivery.CommitSHA = &commitSHA
	}
	if commitMessage != "" {
		delivery.CommitMessage = &commitMessage
	}
	if author != "" {
		delivery.Author = &author
	}

	if verifyErr != nil {
		delivery.Status = store.DeliveryFailed
		h.recordDelivery(ctx, delivery)
		log.Warn().Err(verifyErr).Int64("application_id", app.ID).Msg("webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
		return
	}

	appBranch := "main"
	if app.GitBranch != nil && *app.GitBranch != "" {
		appBranch = *app.GitBranch
	}

	if branch != "" && branch != appBranch {
		delivery.Status = store.DeliverySkipped
		h.recordDelivery(ctx, delivery)
		c.JSON(http.StatusOK, gin.H{"message": "branch does not match, skipped"})
		return
	}

	deployment, err := h.orchestrator.Enqueue(ctx, app.ID, store.TriggerWebhook)
	if err != nil {
		delivery.Status = store.DeliveryFailed
		h.recordDelivery(ctx, delivery)
		status := apperror.HTTPStatus(apperror.KindOf(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	delivery.Status = store.DeliverySuccess
	delivery.DeploymentID = &deployment.ID
	h.recordDelivery(ctx, delivery)

	c.JSON(http.StatusAccepted, gin.H{"deployment_id": deployment.ID})
}

func (h *Handler) recordDelivery(ctx context.Context, delivery store.WebhookDelivery) {
	if _, err := h.store.RecordWebhookDelivery(ctx, delivery); err != nil {
		log.Warn().Err(err).Int64("application_id", delivery.ApplicationID).Msg("failed to record webhook delivery")
	}
}

// verifyGitHubSignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 computed over body with secret, using a constant-time
// comparison to avoid a timing side channel.
func verifyGitHubSignature(body []byte, signature, secret string) error {
	if signature == "" {
		return fmt.Errorf("missing signature header")
	}
	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) {
		return fmt.Errorf("unexpected signature format")
	}
	expectedHex := strings.TrimPrefix(signature, prefix)
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return fmt.Errorf("malformed signature")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	computed := mac.Sum(nil)

	if !hmac.Equal(computed, expected) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// verifyGitLabToken checks the X-Gitlab-Token header for equality with
// secret, constant-time to avoid leaking the secret through timing.
func verifyGitLabToken(token, secret string) error {
	if token == "" {
		return fmt.Errorf("missing token header")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		return fmt.Errorf("token mismatch")
	}
	return nil
}

func refToBranch(ref string) string {
	const prefix = "refs/heads/"
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix)
	}
	return ref
}

func parseID(s string) int64 {
	var id int64
	fmt.Sscanf(s, "%d", &id)
	return id
}
