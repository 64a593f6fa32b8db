package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"atelier/api/internal/apperr"
)

// Stripe caps event payloads well below this; anything larger is not a
// webhook delivery.
const webhookBodyLimit = 1 << 20

// StripeWebhook hands the raw body to the processor. The signature is
// computed over the exact bytes received, so the body must not be decoded
// before verification.
func (h HandlerSet) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	result, err := h.processor.Process(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if apperr.KindOf(err) == apperr.KindValidation {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": apperr.Message(err)})
			return
		}
		// 5xx tells Stripe to redeliver; the dedup claim was already released.
		h.log.Error().Err(err).Msg("stripe event processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "status": string(result)})
}
