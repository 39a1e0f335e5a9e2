package store

import (
	"time"

	"github.com/go-tokengate/tokengate/internal/models"

	"gorm.io/gorm"
)

// CreateAuditLog persists a single audit entry.
func (s *Store) CreateAuditLog(entry *models.AuditLog) error {
	return s.db.Create(entry).Error
}

// CreateAuditLogBatch persists a batch of audit entries in one insert.
func (s *Store) CreateAuditLogBatch(entries []*models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.Create(entries).Error
}

// GetAuditLogsPaginated returns audit logs matching filters, newest first.
func (s *Store) GetAuditLogsPaginated(
	params PaginationParams,
	filters AuditLogFilters,
) ([]models.AuditLog, PaginationResult, error) {
	query := s.db.Model(&models.AuditLog{})

	if filters.EventType != "" {
		query = query.Where("event_type = ?", filters.EventType)
	}
	if filters.ActorUserID != "" {
		query = query.Where("actor_user_id = ?", filters.ActorUserID)
	}
	if filters.ActorClientID != "" {
		query = query.Where("actor_client_id = ?", filters.ActorClientID)
	}
	if filters.ResourceType != "" {
		query = query.Where("resource_type = ?", filters.ResourceType)
	}
	if filters.ResourceID != "" {
		query = query.Where("resource_id = ?", filters.ResourceID)
	}
	if filters.Severity != "" {
		query = query.Where("severity = ?", filters.Severity)
	}
	if filters.Success != nil {
		query = query.Where("success = ?", *filters.Success)
	}
	if !filters.StartTime.IsZero() {
		query = query.Where("event_time >= ?", filters.StartTime)
	}
	if !filters.EndTime.IsZero() {
		query = query.Where("event_time <= ?", filters.EndTime)
	}
	if filters.ActorIP != "" {
		query = query.Where("actor_ip = ?", filters.ActorIP)
	}
	if filters.Search != "" {
		like := "%" + filters.Search + "%"
		query = query.Where(
			"action LIKE ? OR actor_client_id LIKE ? OR resource_id LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, PaginationResult{}, err
	}

	result := CalculatePagination(total, params.Page, params.PageSize)

	var logs []models.AuditLog
	err := query.Order("event_time DESC").
		Offset((result.CurrentPage - 1) * result.PageSize).
		Limit(result.PageSize).
		Find(&logs).Error
	if err != nil {
		return nil, PaginationResult{}, err
	}

	return logs, result, nil
}

// DeleteOldAuditLogs removes audit entries older than cutoff.
func (s *Store) DeleteOldAuditLogs(cutoff time.Time) (int64, error) {
	result := s.db.Where("event_time < ?", cutoff).Delete(&models.AuditLog{})
	return result.RowsAffected, result.Error
}

// GetAuditLogStats aggregates audit counts for a time window.
func (s *Store) GetAuditLogStats(startTime, endTime time.Time) (AuditLogStats, error) {
	stats := AuditLogStats{
		EventsByType:     make(map[models.EventType]int64),
		EventsBySeverity: make(map[models.EventSeverity]int64),
	}

	window := func() *gorm.DB {
		return s.db.Model(&models.AuditLog{}).
			Where("event_time >= ? AND event_time <= ?", startTime, endTime)
	}

	if err := window().Count(&stats.TotalEvents).Error; err != nil {
		return stats, err
	}

	type typeCount struct {
		EventType models.EventType
		Count     int64
	}
	var byType []typeCount
	if err := window().
		Select("event_type, COUNT(*) as count").
		Group("event_type").
		Scan(&byType).Error; err != nil {
		return stats, err
	}
	for _, tc := range byType {
		stats.EventsByType[tc.EventType] = tc.Count
	}

	type severityCount struct {
		Severity models.EventSeverity
		Count    int64
	}
	var bySeverity []severityCount
	if err := window().
		Select("severity, COUNT(*) as count").
		Group("severity").
		Scan(&bySeverity).Error; err != nil {
		return stats, err
	}
	for _, sc := range bySeverity {
		stats.EventsBySeverity[sc.Severity] = sc.Count
	}

	if err := window().
		Where("success = ?", true).
		Count(&stats.SuccessCount).Error; err != nil {
		return stats, err
	}
	stats.FailureCount = stats.TotalEvents - stats.SuccessCount

	return stats, nil
}
