package handler

import (
	"net/http"

	"miturn/internal/domain"
	"miturn/internal/middleware"
	"miturn/internal/models"
	"miturn/internal/repository"
	"miturn/pkg/analytics"
	"miturn/pkg/bank"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type LinkHandler struct {
	provider    bank.Provider
	accountRepo *repository.LinkedAccountRepository
	tracker     analytics.Tracker
	logger      *zap.Logger
}

func NewLinkHandler(provider bank.Provider, accountRepo *repository.LinkedAccountRepository, tracker analytics.Tracker, logger *zap.Logger) *LinkHandler {
	return &LinkHandler{provider: provider, accountRepo: accountRepo, tracker: tracker, logger: logger}
}

// CreateToken starts the aggregator link flow for the caller.
func (h *LinkHandler) CreateToken(c *gin.Context) {
	userID := middleware.GetUserID(c)
	token, err := h.provider.CreateLinkToken(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("create link token", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not start link flow"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"link_token": token})
}

type ExchangeRequest struct {
	PublicToken string `json:"public_token" binding:"required"`
}

// Exchange trades the public token from the completed link flow for a
// long-lived access token and stores the funding account. The first
// linked account becomes the default.
func (h *LinkHandler) Exchange(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.provider.ExchangePublicToken(c.Request.Context(), req.PublicToken)
	if err != nil {
		h.logger.Error("exchange public token", zap.Uint("user_id", userID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}
	existing, _ := h.accountRepo.ListByUser(userID)
	account := &models.LinkedAccount{
		UserID:      userID,
		Institution: item.Institution,
		AccountID:   item.AccountID,
		Mask:        item.Mask,
		AccessToken: item.AccessToken,
		IsDefault:   len(existing) == 0,
	}
	if err := h.accountRepo.Create(account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store account"})
		return
	}
	h.tracker.Track(domain.EventAccountLinked, userID, map[string]interface{}{
		"institution": item.Institution,
	})
	c.JSON(http.StatusCreated, gin.H{"account": account})
}

func (h *LinkHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	accounts, err := h.accountRepo.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}
