package handler

import (
	"errors"
	"net/http"
	"strconv"

	"miturn/internal/middleware"
	"miturn/internal/repository"
	"miturn/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TransactionHandler struct {
	txRepo       *repository.TransactionRepository
	circleRepo   *repository.CircleRepository
	goalRepo     *repository.GoalRepository
	contribution *service.ContributionService
}

func NewTransactionHandler(
	txRepo *repository.TransactionRepository,
	circleRepo *repository.CircleRepository,
	goalRepo *repository.GoalRepository,
	contribution *service.ContributionService,
) *TransactionHandler {
	return &TransactionHandler{
		txRepo:       txRepo,
		circleRepo:   circleRepo,
		goalRepo:     goalRepo,
		contribution: contribution,
	}
}

type ContributeRequest struct {
	CircleID    *uint  `json:"circle_id"`
	GoalID      *uint  `json:"goal_id"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Description string `json:"description"`
}

// Contribute starts a one-off contribution to a circle or a goal. The
// transaction is returned pending; settlement arrives via the webhook.
func (h *TransactionHandler) Contribute(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.CircleID == nil) == (req.GoalID == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "set exactly one of circle_id or goal_id"})
		return
	}
	currency := "USD"
	if req.CircleID != nil {
		circle, err := h.circleRepo.GetByID(*req.CircleID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "circle not found"})
			return
		}
		currency = circle.Currency
		if m, err := h.circleRepo.GetMember(*req.CircleID, userID); err != nil || !m.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this circle"})
			return
		}
	} else {
		goal, err := h.goalRepo.GetByID(*req.GoalID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "goal not found"})
			return
		}
		if goal.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "not your goal"})
			return
		}
	}
	tx, err := h.contribution.Initiate(c.Request.Context(), userID, req.CircleID, req.GoalID, req.AmountCents, currency, req.Description)
	if err != nil {
		if errors.Is(err, service.ErrNoFundingAccount) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "link a funding account first"})
			return
		}
		if errors.Is(err, service.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "transfer could not be started"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// List returns the caller's transaction history, newest first.
func (h *TransactionHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txs, err := h.txRepo.ListByUser(userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Get returns a single transaction owned by the caller.
func (h *TransactionHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	tx, err := h.txRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if tx.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your transaction"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}
