package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/models"
)

// ScheduleRepository stores scheduled sweeps.
type ScheduleRepository struct {
	db *gorm.DB
}

// NewScheduleRepository creates a repository over db.
func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Create inserts a schedule.
func (r *ScheduleRepository) Create(ctx context.Context, s *models.ScheduledSweep) error {
	if err := r.db.WithContext(ctx).Create(s).Error; err != nil {
		return fmt.Errorf("repository: create schedule: %w", err)
	}
	return nil
}

// Get returns one schedule.
func (r *ScheduleRepository) Get(ctx context.Context, id string) (*models.ScheduledSweep, error) {
	var s models.ScheduledSweep
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// GetByName returns the schedule called name.
func (r *ScheduleRepository) GetByName(ctx context.Context, name string) (*models.ScheduledSweep, error) {
	var s models.ScheduledSweep
	if err := r.db.WithContext(ctx).First(&s, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// List returns every schedule ordered by name.
func (r *ScheduleRepository) List(ctx context.Context, enabledOnly bool) ([]models.ScheduledSweep, error) {
	query := r.db.WithContext(ctx)
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	var out []models.ScheduledSweep
	if err := query.Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("repository: list schedules: %w", err)
	}
	return out, nil
}

// Delete removes a schedule.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.ScheduledSweep{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("repository: delete schedule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRun stamps the outcome of the latest tick.
func (r *ScheduleRepository) RecordRun(ctx context.Context, id, runID, status string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"last_run_at": &now,
		"last_status": status,
	}
	if runID != "" {
		updates["last_run_id"] = runID
	}
	return r.db.WithContext(ctx).Model(&models.ScheduledSweep{}).Where("id = ?", id).
		Updates(updates).Error
}
