package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"miturn/internal/middleware"
	"miturn/internal/models"
	"miturn/internal/repository"
	"miturn/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type GoalHandler struct {
	goalRepo   *repository.GoalRepository
	allocRepo  *repository.AllocationRepository
	allocation *service.AllocationService
}

func NewGoalHandler(goalRepo *repository.GoalRepository, allocRepo *repository.AllocationRepository, allocation *service.AllocationService) *GoalHandler {
	return &GoalHandler{goalRepo: goalRepo, allocRepo: allocRepo, allocation: allocation}
}

type CreateGoalRequest struct {
	Name        string `json:"name" binding:"required,min=2,max=128"`
	TargetCents int64  `json:"target_cents" binding:"required,gt=0"`
	Deadline    string `json:"deadline" binding:"required"` // ISO date
}

func (h *GoalHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deadline, err := time.Parse("2006-01-02", req.Deadline)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deadline format (use YYYY-MM-DD)"})
		return
	}
	if !deadline.After(time.Now().UTC()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deadline must be in the future"})
		return
	}
	goal := &models.Goal{
		UserID:      userID,
		Name:        req.Name,
		TargetCents: req.TargetCents,
		Deadline:    deadline,
		IsActive:    true,
	}
	if err := h.goalRepo.Create(goal); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create goal"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"goal": goal})
}

func (h *GoalHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	goals, err := h.goalRepo.ListByUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"goals": goals})
}

// Get returns the goal plus today's suggested allocation, computed on the
// fly so the number is fresh even before the daily pass has run.
func (h *GoalHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	goal, ok := h.ownedGoal(c, userID)
	if !ok {
		return
	}
	resp := gin.H{"goal": goal}
	if suggested, err := h.allocation.SuggestForGoal(goal, time.Now().UTC()); err == nil {
		resp["suggested_today_cents"] = suggested
	}
	if a, err := h.allocRepo.GetForDate(goal.ID, time.Now().UTC()); err == nil {
		resp["allocation"] = a
	}
	c.JSON(http.StatusOK, resp)
}

// Allocations returns the goal's recent allocation history.
func (h *GoalHandler) Allocations(c *gin.Context) {
	userID := middleware.GetUserID(c)
	goal, ok := h.ownedGoal(c, userID)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	rows, err := h.allocRepo.ListByGoal(goal.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"allocations": rows})
}

// Deactivate stops allocation suggestions for the goal.
func (h *GoalHandler) Deactivate(c *gin.Context) {
	userID := middleware.GetUserID(c)
	goal, ok := h.ownedGoal(c, userID)
	if !ok {
		return
	}
	if err := h.goalRepo.Deactivate(goal.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *GoalHandler) ownedGoal(c *gin.Context, userID uint) (*models.Goal, bool) {
	goalID, err := parseIDParam(c, "id")
	if err != nil {
		return nil, false
	}
	goal, err := h.goalRepo.GetByID(goalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "goal not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return nil, false
	}
	if goal.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your goal"})
		return nil, false
	}
	return goal, true
}
