// Package webhooks receives CRM change notifications.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"crmdash-go/internal/config"
	"crmdash-go/internal/constants"
	"crmdash-go/internal/logging"
	"crmdash-go/internal/monitoring"
	"crmdash-go/internal/netutil"
	"crmdash-go/internal/webhook"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Ingester applies one webhook event to the live record set.
type Ingester interface {
	Ingest(ctx context.Context, eventType string, data json.RawMessage) (webhook.Metrics, error)
}

// Handler serves POST /webhooks/:provider. It always answers 200: the sender
// cannot act on a failure, so problems are logged and counted instead.
type Handler struct {
	ingester        Ingester
	secret          string
	signatureHeader string
}

// New builds the handler. An empty secret disables signature checks.
func New(ingester Ingester, cfg config.WebhookConfig) *Handler {
	header := cfg.SignatureHeader
	if header == "" {
		header = "X-Webhook-Signature"
	}
	return &Handler{ingester: ingester, secret: cfg.Secret, signatureHeader: header}
}

// Register mounts the route on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/webhooks/:provider", h.Receive)
}

// Receive verifies, parses and ingests one event.
func (h *Handler) Receive(c *gin.Context) {
	provider := c.Param("provider")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, constants.MaxWebhookBodyBytes))
	if err != nil {
		h.reject(c, provider, "", "read_error", err)
		return
	}
	if !webhook.VerifySignature(h.secret, body, c.GetHeader(h.signatureHeader)) {
		h.reject(c, provider, "", "bad_signature", errors.New("webhook signature mismatch"))
		return
	}
	eventType, data, err := webhook.ParseEnvelope(body)
	if err != nil {
		h.reject(c, provider, "", "invalid_payload", err)
		return
	}

	metrics, err := h.ingester.Ingest(c.Request.Context(), eventType, data)
	switch {
	case errors.Is(err, webhook.ErrUnsupportedEvent):
		monitoring.WebhookEventsTotal.WithLabelValues(provider, eventType, "ignored").Inc()
		logging.WithReq(c, log.Fields{"provider": provider, "event_type": eventType}).Debug("webhook event type ignored")
	case err != nil:
		h.reject(c, provider, eventType, "ingest_error", err)
		return
	default:
		monitoring.WebhookEventsTotal.WithLabelValues(provider, eventType, "applied").Inc()
		logging.WithReq(c, log.Fields{
			"provider":      provider,
			"event_type":    eventType,
			"total_records": metrics.TotalRecords,
		}).Info("webhook event applied")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) reject(c *gin.Context, provider, eventType, reason string, err error) {
	if eventType == "" {
		eventType = "unknown"
	}
	monitoring.WebhookEventsTotal.WithLabelValues(provider, eventType, reason).Inc()
	logging.WithReq(c, log.Fields{
		"provider":   provider,
		"event_type": eventType,
		"reason":     reason,
		"source":     netutil.ClientSource(c),
	}).WithError(err).Warn("webhook event rejected")
	c.JSON(http.StatusOK, gin.H{"success": true})
}
