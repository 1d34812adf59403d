package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"miturn/internal/domain"
	"miturn/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransferEvent is the provider's webhook payload for a transfer status
// change. TransferID matches the reference we stored at initiation.
type TransferEvent struct {
	TransferID string `json:"transfer_id"`
	EventType  string `json:"event_type"` // settled | failed | cancelled | returned
	Timestamp  string `json:"timestamp"`
	FailureID  string `json:"failure_id,omitempty"`
}

type TransferWebhookHandler struct {
	ledger *service.LedgerService
	logger *zap.Logger
}

func NewTransferWebhookHandler(ledger *service.LedgerService, logger *zap.Logger) *TransferWebhookHandler {
	return &TransferWebhookHandler{ledger: ledger, logger: logger}
}

// Handle settles or fails the matching ledger transaction. The endpoint is
// idempotent: replays and events for already-final transactions are
// acknowledged without effect, and unknown references are acknowledged so
// the provider stops retrying.
func (h *TransferWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	var ev TransferEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		h.logger.Warn("transfer webhook: bad payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if ev.TransferID == "" {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var to string
	switch ev.EventType {
	case "settled", "posted":
		to = domain.TxStatusCompleted
	case "failed", "returned":
		to = domain.TxStatusFailed
	case "cancelled":
		to = domain.TxStatusCancelled
	default:
		// Intermediate events (created, pending) carry no transition.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	tx, err := h.ledger.TransitionByProviderRef(c.Request.Context(), ev.TransferID, to)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			h.logger.Warn("transfer webhook: unknown reference", zap.String("transfer_id", ev.TransferID))
			c.JSON(http.StatusOK, gin.H{"received": true})
		case errors.Is(err, service.ErrTransactionFinal):
			c.JSON(http.StatusOK, gin.H{"received": true})
		default:
			h.logger.Error("transfer webhook: transition failed",
				zap.String("transfer_id", ev.TransferID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	h.logger.Info("transfer webhook processed",
		zap.String("transfer_id", ev.TransferID),
		zap.Uint("tx_id", tx.ID),
		zap.String("status", tx.Status))
	c.JSON(http.StatusOK, gin.H{"received": true})
}
