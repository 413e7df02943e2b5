/*
 * @module service/repository/run_repository
 * @description Persistence of mining runs, their ranked rules and scheduled sweeps
 * @architecture 数据访问层 - gorm仓储
 * @stateFlow Create(pending) -> MarkRunning -> MarkSucceeded(rules) | MarkFailed
 * @rules Rules are written in the same transaction that marks the run successful;
 *        lookups of unknown ids return ErrNotFound
 * @dependencies gorm.io/gorm
 * @refs service/models/mining.go
 */

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/service/models"
)

// ErrNotFound is returned for unknown run or schedule ids.
var ErrNotFound = errors.New("repository: record not found")

const ruleBatchSize = 200

// RunRepository stores mining runs and their rules.
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a repository over db.
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// ListRunsQuery filters and pages ListRuns.
type ListRunsQuery struct {
	Kind     string
	Status   string
	Page     int
	PageSize int
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// Create inserts a pending run.
func (r *RunRepository) Create(ctx context.Context, run *models.MiningRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("repository: create run: %w", err)
	}
	return nil
}

// MarkRunning moves a run to running and stamps its start time.
func (r *RunRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now()
	return r.update(ctx, id, map[string]interface{}{
		"status":     models.RunStatusRunning,
		"start_time": &now,
	})
}

// MarkSucceeded stores rules in rank order and finishes the run.
func (r *RunRepository) MarkSucceeded(ctx context.Context, id string, stats interface{}, rules []association.Rule) error {
	statsJSON, err := models.ToJSONB(stats)
	if err != nil {
		return fmt.Errorf("repository: encode stats: %w", err)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.MiningRun
		if err := tx.First(&run, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		if mined := models.NewMinedRules(id, rules); len(mined) > 0 {
			if err := tx.CreateInBatches(mined, ruleBatchSize).Error; err != nil {
				return fmt.Errorf("repository: save rules: %w", err)
			}
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":     models.RunStatusSuccess,
			"stats":      statsJSON,
			"rule_count": len(rules),
			"end_time":   &now,
		}
		if run.StartTime != nil {
			updates["duration_ms"] = now.Sub(*run.StartTime).Milliseconds()
		}
		return tx.Model(&models.MiningRun{}).Where("id = ?", id).Updates(updates).Error
	})
}

// MarkFailed finishes the run with an error message.
func (r *RunRepository) MarkFailed(ctx context.Context, id string, cause error) error {
	now := time.Now()
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.RunStatusFailed,
		"error_message": msg,
		"end_time":      &now,
	})
}

func (r *RunRepository) update(ctx context.Context, id string, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.MiningRun{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("repository: update run %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns one run.
func (r *RunRepository) Get(ctx context.Context, id string) (*models.MiningRun, error) {
	var run models.MiningRun
	if err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

// List returns one page of runs, newest first, and the total count.
func (r *RunRepository) List(ctx context.Context, q ListRunsQuery) ([]models.MiningRun, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > 200 {
		q.PageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&models.MiningRun{})
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("repository: count runs: %w", err)
	}
	var runs []models.MiningRun
	err := query.Order("created_at DESC").Order("id").
		Offset((q.Page - 1) * q.PageSize).Limit(q.PageSize).
		Find(&runs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("repository: list runs: %w", err)
	}
	return runs, total, nil
}

// Rules returns the rules of a run in rank order. variant filters sweep rules
// when non-empty; limit <= 0 returns all.
func (r *RunRepository) Rules(ctx context.Context, runID, variant string, limit int) ([]models.MinedRule, error) {
	if _, err := r.Get(ctx, runID); err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("run_id = ?", runID)
	if variant != "" {
		query = query.Where("variant = ?", variant)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rules []models.MinedRule
	if err := query.Order("rank").Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("repository: list rules: %w", err)
	}
	return rules, nil
}

// DeleteFinishedBefore removes finished runs created before cutoff together
// with their rules and reports how many runs went. Pending and running runs
// are never removed.
func (r *RunRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		err := tx.Model(&models.MiningRun{}).
			Where("created_at < ? AND status IN ?", cutoff, []string{models.RunStatusSuccess, models.RunStatusFailed}).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("run_id IN ?", ids).Delete(&models.MinedRule{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.MiningRun{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("repository: delete expired runs: %w", err)
	}
	return deleted, nil
}
