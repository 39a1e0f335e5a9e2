package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-tokengate/tokengate/internal/models"
	"github.com/go-tokengate/tokengate/internal/services"
	"github.com/go-tokengate/tokengate/internal/store"

	"github.com/gin-gonic/gin"
)

const (
	// queryValueTrue represents the string "true" used in query parameters
	queryValueTrue = "true"
)

// AuditHandler exposes the admin audit log API.
type AuditHandler struct {
	auditService *services.AuditService
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
	}
}

// parseAuditFilters reads the shared filter query parameters.
func parseAuditFilters(c *gin.Context) store.AuditLogFilters {
	filters := store.AuditLogFilters{
		EventType:     models.EventType(c.Query("event_type")),
		ActorUserID:   c.Query("actor_user_id"),
		ActorClientID: c.Query("actor_client_id"),
		ResourceType:  models.ResourceType(c.Query("resource_type")),
		ResourceID:    c.Query("resource_id"),
		Severity:      models.EventSeverity(c.Query("severity")),
		ActorIP:       c.Query("actor_ip"),
		Search:        c.Query("search"),
	}

	// Parse success filter (optional boolean)
	if successStr := c.Query("success"); successStr != "" {
		success := successStr == queryValueTrue
		filters.Success = &success
	}

	// Parse time range
	if startTimeStr := c.Query("start_time"); startTimeStr != "" {
		if t, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			filters.StartTime = t
		}
	}
	if endTimeStr := c.Query("end_time"); endTimeStr != "" {
		if t, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			filters.EndTime = t
		}
	}

	return filters
}

// ListAuditLogs retrieves audit logs with pagination and filtering
// (GET /admin/audit-logs).
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	// Parse pagination parameters
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := store.PaginationParams{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
	}

	filters := parseAuditFilters(c)

	logs, pagination, err := h.auditService.GetAuditLogs(params, filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit logs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":       logs,
		"pagination": pagination,
	})
}

// GetAuditLogStats returns statistics about audit logs
// (GET /admin/audit-logs/stats).
func (h *AuditHandler) GetAuditLogStats(c *gin.Context) {
	// Parse time range
	var startTime, endTime time.Time

	if startTimeStr := c.Query("start_time"); startTimeStr != "" {
		if t, err := time.Parse(time.RFC3339, startTimeStr); err == nil {
			startTime = t
		}
	}
	if endTimeStr := c.Query("end_time"); endTimeStr != "" {
		if t, err := time.Parse(time.RFC3339, endTimeStr); err == nil {
			endTime = t
		}
	}

	// Default to last 30 days if no time range specified
	if startTime.IsZero() && endTime.IsZero() {
		endTime = time.Now()
		startTime = endTime.Add(-30 * 24 * time.Hour)
	}

	stats, err := h.auditService.GetAuditLogStats(startTime, endTime)
	if err != nil {
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "Failed to retrieve audit log statistics"},
		)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stats":      stats,
		"start_time": startTime,
		"end_time":   endTime,
	})
}

// ExportAuditLogs exports audit logs as CSV (GET /admin/audit-logs/export).
func (h *AuditHandler) ExportAuditLogs(c *gin.Context) {
	filters := parseAuditFilters(c)

	// Export up to 10k records
	params := store.PaginationParams{
		Page:     1,
		PageSize: 10000,
	}

	logs, _, err := h.auditService.GetAuditLogs(params, filters)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit logs"})
		return
	}

	// Set CSV headers
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf(
		"attachment; filename=audit_logs_%s.csv",
		time.Now().Format("2006-01-02"),
	))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	// Write CSV header
	if err := writer.Write([]string{
		"Event Time",
		"Event Type",
		"Severity",
		"Actor User ID",
		"Actor Client ID",
		"Actor IP",
		"Resource Type",
		"Resource ID",
		"Action",
		"Success",
		"Error Message",
	}); err != nil {
		return
	}

	// Write data rows
	for _, log := range logs {
		successStr := "Yes"
		if !log.Success {
			successStr = "No"
		}

		if err := writer.Write([]string{
			log.EventTime.Format(time.RFC3339),
			string(log.EventType),
			string(log.Severity),
			log.ActorUserID,
			log.ActorClientID,
			log.ActorIP,
			string(log.ResourceType),
			log.ResourceID,
			log.Action,
			successStr,
			log.ErrorMessage,
		}); err != nil {
			return
		}
	}
}
