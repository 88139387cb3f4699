package handlers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/thesisdesk/thesisdesk-backend/internal/http/middleware"
	"github.com/thesisdesk/thesisdesk-backend/internal/http/response"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/apierr"
	"github.com/thesisdesk/thesisdesk-backend/internal/platform/logger"
	"github.com/thesisdesk/thesisdesk-backend/internal/services"
)

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	log            *logger.Logger
	billingService services.BillingService
	webhookSecret  []byte
}

func NewPaymentHandler(log *logger.Logger, billingService services.BillingService) *PaymentHandler {
	return &PaymentHandler{
		log:            log.With("handler", "PaymentHandler"),
		billingService: billingService,
		webhookSecret:  []byte(strings.TrimSpace(os.Getenv("PAYSTACK_WEBHOOK_SECRET"))),
	}
}

// Webhook consumes gateway events. The gateway retries on anything but
// a 2xx, so linkage failures that a retry cannot fix (unknown project,
// unresolvable payer) are logged and acknowledged; only persistence
// failures surface as 5xx.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("read webhook body: %w", err)))
		return
	}

	if !h.verifySignature(raw, c.GetHeader("X-Paystack-Signature")) {
		h.log.Warn("webhook signature mismatch", "remote", c.ClientIP())
		response.RespondError(c, apierr.Unauthorized(fmt.Errorf("invalid webhook signature")))
		return
	}

	var event services.PaymentEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		response.RespondError(c, apierr.Validation(fmt.Errorf("parse webhook body: %w", err)))
		return
	}

	if event.Event != "charge.success" || !strings.EqualFold(event.Data.Status, "success") {
		h.log.Info("webhook event ignored", "event", event.Event, "status", event.Data.Status)
		response.RespondOK(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	result, err := h.billingService.RecordPayment(c.Request.Context(), event, raw)
	if err != nil {
		ae := apierr.From(err)
		if ae.Status >= http.StatusInternalServerError {
			response.RespondError(c, err)
			return
		}
		h.log.Error("payment event not processable",
			"reference", event.Data.Reference,
			"code", ae.Code,
			"error", err,
		)
		response.RespondOK(c, http.StatusOK, gin.H{"status": "unprocessable", "code": ae.Code})
		return
	}

	status := "processed"
	if result.AlreadyProcessed {
		status = "duplicate"
	}
	response.RespondOK(c, http.StatusOK, gin.H{"status": status})
}

func (h *PaymentHandler) verifySignature(body []byte, signature string) bool {
	if len(h.webhookSecret) == 0 {
		return false
	}
	mac := hmac.New(sha512.New, h.webhookSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

func (h *PaymentHandler) Get(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		response.RespondError(c, apierr.Validation(fmt.Errorf("payment reference required")))
		return
	}

	payment, err := h.billingService.GetPayment(c.Request.Context(), middleware.OwnerFrom(c), reference)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, http.StatusOK, gin.H{"payment": payment})
}
