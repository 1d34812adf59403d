package handler

import (
	"errors"
	"net/http"
	"time"

	"miturn/internal/middleware"
	"miturn/internal/models"
	"miturn/internal/repository"
	"miturn/internal/schedule"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RecurringHandler struct {
	recurringRepo *repository.RecurringRepository
	circleRepo    *repository.CircleRepository
}

func NewRecurringHandler(recurringRepo *repository.RecurringRepository, circleRepo *repository.CircleRepository) *RecurringHandler {
	return &RecurringHandler{recurringRepo: recurringRepo, circleRepo: circleRepo}
}

type CreateRecurringRequest struct {
	CircleID    uint   `json:"circle_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,gt=0"`
	Frequency   string `json:"frequency" binding:"required,oneof=weekly biweekly monthly"`
	DayOfWeek   *int   `json:"day_of_week"`
	DayOfMonth  *int   `json:"day_of_month"`
}

// Create sets up an automatic contribution schedule for a circle the
// caller belongs to. One schedule entry per (user, circle).
func (h *RecurringHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cadence, err := schedule.New(req.Frequency, req.DayOfWeek, req.DayOfMonth)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if m, err := h.circleRepo.GetMember(req.CircleID, userID); err != nil || !m.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this circle"})
		return
	}
	entry := &models.RecurringContribution{
		UserID:               userID,
		CircleID:             req.CircleID,
		AmountCents:          req.AmountCents,
		Frequency:            req.Frequency,
		DayOfWeek:            req.DayOfWeek,
		DayOfMonth:           req.DayOfMonth,
		IsActive:             true,
		NextContributionDate: cadence.NextAfter(time.Now().UTC()),
	}
	if err := h.recurringRepo.Create(entry); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "schedule already exists for this circle"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create schedule"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recurring": entry})
}

type UpdateRecurringRequest struct {
	AmountCents *int64  `json:"amount_cents"`
	Frequency   *string `json:"frequency"`
	DayOfWeek   *int    `json:"day_of_week"`
	DayOfMonth  *int    `json:"day_of_month"`
}

// Update changes amount or cadence. A cadence change recomputes the next
// contribution date from now.
func (h *RecurringHandler) Update(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entry, ok := h.ownedEntry(c, userID)
	if !ok {
		return
	}
	var req UpdateRecurringRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AmountCents != nil {
		if *req.AmountCents <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be positive"})
			return
		}
		entry.AmountCents = *req.AmountCents
	}
	if req.Frequency != nil || req.DayOfWeek != nil || req.DayOfMonth != nil {
		freq := entry.Frequency
		if req.Frequency != nil {
			freq = *req.Frequency
		}
		dow, dom := req.DayOfWeek, req.DayOfMonth
		cadence, err := schedule.New(freq, dow, dom)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		entry.Frequency = freq
		entry.DayOfWeek = dow
		entry.DayOfMonth = dom
		entry.NextContributionDate = cadence.NextAfter(time.Now().UTC())
	}
	if err := h.recurringRepo.Update(entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recurring": entry})
}

// Pause deactivates the schedule; no further automatic transactions occur.
func (h *RecurringHandler) Pause(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entry, ok := h.ownedEntry(c, userID)
	if !ok {
		return
	}
	if err := h.recurringRepo.Deactivate(entry.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Resume reactivates a paused schedule and recomputes the next date.
func (h *RecurringHandler) Resume(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entry, ok := h.ownedEntry(c, userID)
	if !ok {
		return
	}
	cadence, err := schedule.New(entry.Frequency, entry.DayOfWeek, entry.DayOfMonth)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "schedule misconfigured"})
		return
	}
	entry.IsActive = true
	entry.NextContributionDate = cadence.NextAfter(time.Now().UTC())
	if err := h.recurringRepo.Update(entry); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recurring": entry})
}

func (h *RecurringHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	entries, err := h.recurringRepo.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recurring": entries})
}

func (h *RecurringHandler) ownedEntry(c *gin.Context, userID uint) (*models.RecurringContribution, bool) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return nil, false
	}
	entry, err := h.recurringRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "schedule not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}
	if entry.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your schedule"})
		return nil, false
	}
	return entry, true
}
