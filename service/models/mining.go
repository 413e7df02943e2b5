/*
 * @module service/models/mining
 * @description 挖掘运行、排序规则和定时扫描计划的数据模型
 * @architecture 分层架构 - 数据模型层
 * @stateFlow run created (pending) -> running -> success/failed; rules written once on success
 * @rules Rules are immutable snapshots of one run; conviction is NULL when unbounded
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/repository, service/association
 */

package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hanamichi-me/DW-traffic/service/association"
)

// Run kinds.
const (
	RunKindSingle = "single"
	RunKindSweep  = "sweep"
)

// Run statuses.
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// MiningRun is one single-configuration run or one whole sweep.
type MiningRun struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind         string     `json:"kind" gorm:"not null;size:20;index" example:"sweep"`                       // single, sweep
	Label        string     `json:"label" gorm:"size:100" example:"fatality_default"`                         // variant label or plan name
	Status       string     `json:"status" gorm:"not null;size:20;default:'pending';index" example:"success"` // pending, running, success, failed
	ScheduleID   *string    `json:"schedule_id,omitempty" gorm:"type:varchar(36);index"`
	Config       JSONB      `json:"config,omitempty" gorm:"type:jsonb"`
	Stats        JSONB      `json:"stats,omitempty" gorm:"type:jsonb"`
	RuleCount    int        `json:"rule_count" gorm:"default:0"`
	ErrorMessage string     `json:"error_message,omitempty" gorm:"type:text"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	DurationMs   int64      `json:"duration_ms" gorm:"default:0"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an id and the initial status.
func (r *MiningRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = RunStatusPending
	}
	return nil
}

// IsFinished reports whether the run reached a terminal status.
func (r *MiningRun) IsFinished() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusFailed
}

// MinedRule is one ranked rule of a run.
type MinedRule struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RunID       string           `json:"run_id" gorm:"not null;type:varchar(36);index:idx_mined_rule_run_rank,priority:1"`
	Rank        int              `json:"rank" gorm:"not null;index:idx_mined_rule_run_rank,priority:2"`
	Variant     string           `json:"variant,omitempty" gorm:"size:100"`
	Antecedents JSONBStringArray `json:"antecedents" gorm:"type:jsonb"`
	Consequents JSONBStringArray `json:"consequents" gorm:"type:jsonb"`
	Support     float64          `json:"support"`
	Confidence  float64          `json:"confidence"`
	Lift        float64          `json:"lift"`
	Leverage    float64          `json:"leverage"`
	Conviction  *float64         `json:"conviction"` // null when unbounded
	CreatedAt   time.Time        `json:"created_at"`
}

// BeforeCreate assigns an id.
func (r *MinedRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// NewMinedRules snapshots ranked rules for runID; rank starts at 1.
func NewMinedRules(runID string, rules []association.Rule) []MinedRule {
	out := make([]MinedRule, len(rules))
	for i, r := range rules {
		out[i] = MinedRule{
			RunID:       runID,
			Rank:        i + 1,
			Variant:     r.Variant,
			Antecedents: JSONBStringArray(r.Antecedent.Strings()),
			Consequents: JSONBStringArray(r.Consequent.Strings()),
			Support:     r.Support,
			Confidence:  r.Confidence,
			Lift:        r.Lift,
			Leverage:    r.Leverage,
		}
		if !association.IsUnbounded(r.Conviction) && !math.IsNaN(r.Conviction) {
			c := r.Conviction
			out[i].Conviction = &c
		}
	}
	return out
}

// ToRule restores the engine representation.
func (r MinedRule) ToRule() association.Rule {
	ante := make([]association.Item, len(r.Antecedents))
	for i, s := range r.Antecedents {
		ante[i] = association.Item(s)
	}
	cons := make([]association.Item, len(r.Consequents))
	for i, s := range r.Consequents {
		cons[i] = association.Item(s)
	}
	conviction := association.Unbounded
	if r.Conviction != nil {
		conviction = *r.Conviction
	}
	return association.Rule{
		Antecedent: association.NewItemset(ante...),
		Consequent: association.NewItemset(cons...),
		Support:    r.Support,
		Confidence: r.Confidence,
		Lift:       r.Lift,
		Leverage:   r.Leverage,
		Conviction: conviction,
		Variant:    r.Variant,
	}
}

// ScheduledSweep runs a sweep plan on a cron schedule.
type ScheduledSweep struct {
	ID             string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name           string     `json:"name" gorm:"not null;size:100;uniqueIndex" example:"nightly_default"`
	CronExpression string     `json:"cron_expression" gorm:"not null;size:100" example:"0 0 2 * * *"` // with seconds
	PlanYAML       string     `json:"plan_yaml,omitempty" gorm:"type:text"`                           // empty means the default plan
	Enabled        bool       `json:"enabled"`
	LastRunID      *string    `json:"last_run_id,omitempty" gorm:"type:varchar(36)"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastStatus     string     `json:"last_status,omitempty" gorm:"size:20"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// BeforeCreate assigns an id.
func (s *ScheduledSweep) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
