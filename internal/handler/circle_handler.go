package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"miturn/internal/middleware"
	"miturn/internal/models"
	"miturn/internal/repository"
	"miturn/internal/schedule"
	"miturn/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CircleHandler struct {
	circleRepo *repository.CircleRepository
	txRepo     *repository.TransactionRepository
	rotation   *service.RotationService
	gamify     *service.GamificationService
	logger     *zap.Logger
}

func NewCircleHandler(
	circleRepo *repository.CircleRepository,
	txRepo *repository.TransactionRepository,
	rotation *service.RotationService,
	gamify *service.GamificationService,
	logger *zap.Logger,
) *CircleHandler {
	return &CircleHandler{
		circleRepo: circleRepo,
		txRepo:     txRepo,
		rotation:   rotation,
		gamify:     gamify,
		logger:     logger,
	}
}

type CreateCircleRequest struct {
	Name              string `json:"name" binding:"required,min=2,max=128"`
	ContributionCents int64  `json:"contribution_cents" binding:"required,gt=0"`
	Currency          string `json:"currency"`
	Frequency         string `json:"frequency" binding:"required,oneof=weekly biweekly monthly"`
	CycleStart        string `json:"cycle_start" binding:"required"` // ISO date
	GraceDays         *int   `json:"grace_days"`
	SkipOverdue       *bool  `json:"skip_overdue"`
}

// Create makes a circle with the caller as owner and first member. The
// rotation does not start until the owner explicitly starts it.
func (h *CircleHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse("2006-01-02", req.CycleStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cycle_start format (use YYYY-MM-DD)"})
		return
	}
	circle := &models.Circle{
		Name:              req.Name,
		OwnerID:           userID,
		ContributionCents: req.ContributionCents,
		Currency:          req.Currency,
		Frequency:         req.Frequency,
		CycleStart:        start,
		GraceDays:         3,
		SkipOverdue:       true,
		RotationPosition:  1,
	}
	if req.Currency == "" {
		circle.Currency = "USD"
	}
	if req.GraceDays != nil {
		circle.GraceDays = *req.GraceDays
	}
	if req.SkipOverdue != nil {
		circle.SkipOverdue = *req.SkipOverdue
	}
	if err := h.circleRepo.Create(circle); err != nil {
		h.logger.Error("create circle", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create circle"})
		return
	}
	member, err := h.circleRepo.AddMember(circle.ID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add owner as member"})
		return
	}
	h.gamify.AwardCircleFounder(userID)
	c.JSON(http.StatusCreated, gin.H{"circle": circle, "member": member})
}

// Join adds the caller at the next free payout position. Joining is closed
// once the rotation has started.
func (h *CircleHandler) Join(c *gin.Context) {
	userID := middleware.GetUserID(c)
	circleID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	circle, err := h.circleRepo.GetByID(circleID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "circle not found"})
		return
	}
	if circle.RotationStarted {
		c.JSON(http.StatusConflict, gin.H{"error": "rotation already started"})
		return
	}
	member, err := h.circleRepo.AddMember(circleID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrPositionTaken) || errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "already a member"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not join circle"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"member": member})
}

// Start begins the rotation. Owner only; positions freeze from here on.
func (h *CircleHandler) Start(c *gin.Context) {
	userID := middleware.GetUserID(c)
	circleID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	circle, err := h.circleRepo.GetByID(circleID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "circle not found"})
		return
	}
	if circle.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the owner can start the rotation"})
		return
	}
	if circle.RotationStarted {
		c.JSON(http.StatusOK, gin.H{"circle": circle})
		return
	}
	members, err := h.circleRepo.ActiveMembers(circleID)
	if err != nil || len(members) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "need at least two members to start"})
		return
	}
	circle.RotationStarted = true
	circle.RotationPosition = members[0].PayoutPosition
	if err := h.circleRepo.Update(circle); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start rotation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"circle": circle})
}

// List returns the caller's circles.
func (h *CircleHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	circles, err := h.circleRepo.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"circles": circles})
}

// Get returns a circle with its derived cycle status: per-member payment
// state, balance and next payout recipient.
func (h *CircleHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	circleID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	if !h.isMember(circleID, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this circle"})
		return
	}
	st, err := h.rotation.Status(c.Request.Context(), circleID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "circle not found"})
			return
		}
		if errors.Is(err, schedule.ErrUnknownFrequency) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "circle misconfigured"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status derivation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"circle":        st.Circle,
		"cycle":         gin.H{"index": st.Cycle.Index, "start": st.Cycle.Start, "end": st.Cycle.End},
		"state":         st.State,
		"members":       memberStatuses(st.Members),
		"paid_count":    st.PaidCount,
		"balance_cents": st.BalanceCents,
	})
}

// Transactions returns recent circle ledger activity for members.
func (h *CircleHandler) Transactions(c *gin.Context) {
	userID := middleware.GetUserID(c)
	circleID, err := parseIDParam(c, "id")
	if err != nil {
		return
	}
	if !h.isMember(circleID, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this circle"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txs, err := h.txRepo.ListByCircle(circleID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *CircleHandler) isMember(circleID, userID uint) bool {
	m, err := h.circleRepo.GetMember(circleID, userID)
	return err == nil && m.IsActive
}

func memberStatuses(members []service.MemberStatus) []gin.H {
	out := make([]gin.H, 0, len(members))
	for _, ms := range members {
		entry := gin.H{
			"user_id":         ms.Member.UserID,
			"payout_position": ms.Member.PayoutPosition,
			"state":           ms.State,
		}
		if ms.DaysOverdue > 0 {
			entry["days_overdue"] = ms.DaysOverdue
		}
		out = append(out, entry)
	}
	return out
}

func parseIDParam(c *gin.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
