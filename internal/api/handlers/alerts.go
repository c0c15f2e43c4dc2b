package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/receiptwise/alerting-backend-go/internal/core/governance"
	"github.com/receiptwise/alerting-backend-go/internal/database/models"
	"github.com/receiptwise/alerting-backend-go/pkg/utils"
)

type proposeAlertRequest struct {
	Title            string  `json:"title" binding:"required"`
	Severity         string  `json:"severity" binding:"required"`
	RuleID           string  `json:"rule_id" binding:"required"`
	TeamID           *string `json:"team_id"`
	MetricName       string  `json:"metric_name" binding:"required"`
	MetricValue      float64 `json:"metric_value"`
	MaxAlertsPerHour int     `json:"max_alerts_per_hour"`
}

type acknowledgeRequest struct {
	User string `json:"user" binding:"required"`
}

// ProposeAlert runs a candidate alert through rate limiting and, when
// admitted, starts its escalation. Suppressed candidates answer 429
// with a Retry-After header.
func (h *Handlers) ProposeAlert(c *gin.Context) {
	var req proposeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	severity := models.Severity(req.Severity)
	if !severity.Valid() {
		utils.SendError(c, http.StatusBadRequest, "Unknown severity: "+req.Severity)
		return
	}

	alert := &models.Alert{
		ID:          uuid.New().String(),
		Title:       req.Title,
		Severity:    severity,
		RuleID:      req.RuleID,
		TeamID:      req.TeamID,
		MetricName:  req.MetricName,
		MetricValue: req.MetricValue,
		Status:      models.AlertStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	rule := &models.AlertRule{
		ID:               req.RuleID,
		MaxAlertsPerHour: req.MaxAlertsPerHour,
	}

	result, state, err := h.engine.Propose(c.Request.Context(), alert, rule)
	if err != nil {
		h.log.WithError(err).Error("Failed to propose alert")
		utils.SendError(c, http.StatusInternalServerError, "Failed to process alert")
		return
	}

	if !result.Allowed {
		if result.RetryAfterSeconds > 0 {
			c.Header("Retry-After", strconv.Itoa(result.RetryAfterSeconds))
		}
		c.JSON(http.StatusTooManyRequests, utils.Response{
			Success:   false,
			Data:      gin.H{"alert": alert, "rate_limit": result},
			Error:     result.Reason,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusAccepted, utils.Response{
		Success:   true,
		Data:      gin.H{"alert": alert, "rate_limit": result, "escalation": state},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// GetAlert returns an alert and its escalation state
func (h *Handlers) GetAlert(c *gin.Context) {
	id := c.Param("id")
	alert, err := h.repos.Alert.GetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to load alert")
		return
	}
	if alert == nil {
		utils.SendError(c, http.StatusNotFound, "Alert not found")
		return
	}

	state, err := h.repos.Escalation.GetByAlertID(c.Request.Context(), id)
	if err != nil {
		h.log.WithError(err).WithField("alert_id", id).Warn("Failed to load escalation state")
	}
	utils.SendSuccess(c, gin.H{"alert": alert, "escalation": state})
}

// AcknowledgeAlert stops escalation for an alert
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	var req acknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	state, err := h.engine.Acknowledge(c.Request.Context(), c.Param("id"), req.User)
	if errors.Is(err, governance.ErrEscalationNotFound) {
		utils.SendError(c, http.StatusNotFound, "No escalation for alert")
		return
	}
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to acknowledge alert")
		return
	}
	utils.SendSuccess(c, state)
}

// ResolveAlert marks an alert resolved and terminates its escalation
func (h *Handlers) ResolveAlert(c *gin.Context) {
	if err := h.engine.Resolve(c.Request.Context(), c.Param("id")); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to resolve alert")
		return
	}
	utils.SendSuccess(c, gin.H{"status": models.AlertStatusResolved})
}

// ClearAlertCondition records that the triggering condition stopped
// firing, arming auto-resolution.
func (h *Handlers) ClearAlertCondition(c *gin.Context) {
	err := h.engine.ClearCondition(c.Request.Context(), c.Param("id"))
	if errors.Is(err, governance.ErrEscalationNotFound) {
		utils.SendError(c, http.StatusNotFound, "No escalation for alert")
		return
	}
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to clear alert condition")
		return
	}
	utils.SendSuccess(c, gin.H{"condition_cleared": true})
}
