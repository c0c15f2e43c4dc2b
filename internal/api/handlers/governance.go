package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/receiptwise/alerting-backend-go/pkg/utils"
)

type adaptiveSignalsRequest struct {
	ScopeType  string   `json:"scope_type" binding:"required"`
	ScopeValue string   `json:"scope_value" binding:"required"`
	ErrorRate  *float64 `json:"error_rate" binding:"required"`
	LoadFactor *float64 `json:"load_factor" binding:"required"`
}

type resetWindowRequest struct {
	ScopeType  string `json:"scope_type" binding:"required"`
	ScopeValue string `json:"scope_value" binding:"required"`
}

// ListRateLimits returns every per-scope window counter
func (h *Handlers) ListRateLimits(c *gin.Context) {
	configs, err := h.repos.RateLimit.List(c.Request.Context())
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to list rate limits")
		return
	}
	utils.SendSuccessWithMeta(c, configs, gin.H{"count": len(configs)})
}

// ResetRateLimit restarts a scope's window on operator request
func (h *Handlers) ResetRateLimit(c *gin.Context) {
	var req resetWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	cfg, err := h.engine.ResetWindow(c.Request.Context(), req.ScopeType, req.ScopeValue)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to reset rate limit window")
		return
	}
	if cfg == nil {
		utils.SendError(c, http.StatusNotFound, "No rate limit window for scope")
		return
	}

	h.log.WithFields(map[string]interface{}{
		"scope_type":  req.ScopeType,
		"scope_value": req.ScopeValue,
	}).Info("Rate limit window reset by operator")
	utils.SendSuccess(c, cfg)
}

// ListAdaptiveLimits returns the current self-adjusting ceilings
func (h *Handlers) ListAdaptiveLimits(c *gin.Context) {
	limits := h.engine.AdaptiveSnapshot()
	utils.SendSuccessWithMeta(c, limits, gin.H{"count": len(limits)})
}

// SetAdaptiveSignals ingests error-rate and load-factor observations
// for a scope. The adaptive tick consumes them on its next run.
func (h *Handlers) SetAdaptiveSignals(c *gin.Context) {
	var req adaptiveSignalsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if *req.ErrorRate < 0 || *req.ErrorRate > 1 || *req.LoadFactor < 0 {
		utils.SendError(c, http.StatusBadRequest, "Signals out of range")
		return
	}

	if err := h.engine.SetAdaptiveSignals(c.Request.Context(), req.ScopeType, req.ScopeValue, *req.ErrorRate, *req.LoadFactor); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to record adaptive signals")
		return
	}
	utils.SendSuccess(c, gin.H{"recorded": true})
}

// ListSuppressions queries the suppression audit log. Defaults to the
// last 24 hours, capped at 500 entries.
func (h *Handlers) ListSuppressions(c *gin.Context) {
	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)

	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid since timestamp")
			return
		}
		since = parsed
	}
	if raw := c.Query("until"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.SendError(c, http.StatusBadRequest, "Invalid until timestamp")
			return
		}
		until = parsed
	}

	limit := 500
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			utils.SendError(c, http.StatusBadRequest, "Invalid limit")
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	entries, err := h.repos.Suppression.List(c.Request.Context(), since, until, limit)
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to query suppression log")
		return
	}
	utils.SendSuccessWithMeta(c, entries, gin.H{
		"count": len(entries),
		"since": since.Format(time.RFC3339),
		"until": until.Format(time.RFC3339),
	})
}

// ReloadPolicies re-reads severity rules and on-call schedules from
// the database into the running engine.
func (h *Handlers) ReloadPolicies(c *gin.Context) {
	if err := h.engine.ReloadPolicies(c.Request.Context()); err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to reload policies")
		return
	}
	utils.SendSuccess(c, gin.H{"reloaded": true})
}

// ListSeverityRules returns the escalation policy table
func (h *Handlers) ListSeverityRules(c *gin.Context) {
	rules, err := h.repos.Policy.ListSeverityRules(c.Request.Context())
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to list severity rules")
		return
	}
	utils.SendSuccessWithMeta(c, rules, gin.H{"count": len(rules)})
}

// ListOnCallSchedules returns the configured on-call schedules
func (h *Handlers) ListOnCallSchedules(c *gin.Context) {
	schedules, err := h.repos.Policy.ListOnCallSchedules(c.Request.Context())
	if err != nil {
		utils.SendError(c, http.StatusInternalServerError, "Failed to list on-call schedules")
		return
	}
	utils.SendSuccessWithMeta(c, schedules, gin.H{"count": len(schedules)})
}
