/*
 * @module api/controllers/schedule_controller
 * @description 定时扫描计划控制器，提供创建、查询、删除和立即执行接口
 * @architecture 分层架构 - 控制器层
 * @stateFlow request -> ParseSchedule -> ScheduleRepository -> SchedulerService
 * @rules Names are unique; the cron expression and plan are validated before anything is stored
 * @dependencies service/scheduler, service/repository
 * @refs service/scheduler/scheduler_service.go
 */

package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanamichi-me/DW-traffic/service/mining"
	"github.com/hanamichi-me/DW-traffic/service/models"
	"github.com/hanamichi-me/DW-traffic/service/repository"
	"github.com/hanamichi-me/DW-traffic/service/scheduler"
)

// ScheduleRegistry is the part of the scheduler the controller drives.
type ScheduleRegistry interface {
	Add(sw *models.ScheduledSweep) error
	Remove(id string)
	Next(id string) (time.Time, bool)
	RunNow(ctx context.Context, id string) (*mining.Outcome, error)
}

// ScheduleController serves /mining/schedules.
type ScheduleController struct {
	schedules *repository.ScheduleRepository
	registry  ScheduleRegistry
}

// NewScheduleController creates a controller.
func NewScheduleController(schedules *repository.ScheduleRepository, registry ScheduleRegistry) *ScheduleController {
	return &ScheduleController{schedules: schedules, registry: registry}
}

// CreateScheduleRequest creates a scheduled sweep.
type CreateScheduleRequest struct {
	Name           string `json:"name" example:"nightly_default"`
	CronExpression string `json:"cron_expression" example:"0 0 2 * * *"`
	PlanYAML       string `json:"plan_yaml,omitempty"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// ScheduleView is a schedule with its next activation.
type ScheduleView struct {
	models.ScheduledSweep
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

func (c *ScheduleController) view(sw models.ScheduledSweep) ScheduleView {
	v := ScheduleView{ScheduledSweep: sw}
	if next, ok := c.registry.Next(sw.ID); ok && !next.IsZero() {
		v.NextRunAt = &next
	}
	return v
}

// CreateSchedule stores and registers a scheduled sweep
// @Summary Create a scheduled sweep
// @Description The cron expression accepts an optional leading seconds field and descriptors such as @daily.
// @Description An empty plan_yaml runs the default plan.
// @Tags schedules
// @Accept json
// @Produce json
// @Param request body CreateScheduleRequest true "schedule"
// @Success 200 {object} APIResponse{data=ScheduleView}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse "name already used"
// @Router /mining/schedules [post]
func (c *ScheduleController) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, r, BadRequestResponse("invalid request body", err))
		return
	}
	if req.Name == "" {
		respond(w, r, BadRequestResponse("name is required", nil))
		return
	}
	if _, err := scheduler.ParseSchedule(req.CronExpression, req.PlanYAML); err != nil {
		respond(w, r, BadRequestResponse("invalid schedule", err))
		return
	}
	if _, err := c.schedules.GetByName(r.Context(), req.Name); err == nil {
		respond(w, r, ConflictResponse("schedule "+req.Name+" already exists", nil))
		return
	} else if !errors.Is(err, repository.ErrNotFound) {
		respondError(w, r, "create schedule failed", err)
		return
	}

	sw := &models.ScheduledSweep{
		Name:           req.Name,
		CronExpression: req.CronExpression,
		PlanYAML:       req.PlanYAML,
		Enabled:        req.Enabled == nil || *req.Enabled,
	}
	if err := c.schedules.Create(r.Context(), sw); err != nil {
		respondError(w, r, "create schedule failed", err)
		return
	}
	if err := c.registry.Add(sw); err != nil {
		respondError(w, r, "register schedule failed", err)
		return
	}
	respond(w, r, SuccessResponse("ok", c.view(*sw)))
}

// ListSchedules lists scheduled sweeps
// @Summary List scheduled sweeps
// @Tags schedules
// @Produce json
// @Success 200 {object} APIResponse{data=[]ScheduleView}
// @Router /mining/schedules [get]
func (c *ScheduleController) ListSchedules(w http.ResponseWriter, r *http.Request) {
	list, err := c.schedules.List(r.Context(), false)
	if err != nil {
		respondError(w, r, "list schedules failed", err)
		return
	}
	views := make([]ScheduleView, len(list))
	for i, sw := range list {
		views[i] = c.view(sw)
	}
	respond(w, r, SuccessResponse("ok", views))
}

// DeleteSchedule removes a scheduled sweep
// @Summary Delete a scheduled sweep
// @Tags schedules
// @Produce json
// @Param id path string true "schedule id"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /mining/schedules/{id} [delete]
func (c *ScheduleController) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := c.schedules.Delete(r.Context(), id); err != nil {
		respondError(w, r, "delete schedule failed", err)
		return
	}
	c.registry.Remove(id)
	respond(w, r, SuccessResponse("deleted", nil))
}

// RunSchedule runs a scheduled sweep immediately
// @Summary Run a scheduled sweep now
// @Description Runs under the schedule's lock; answers 409 when another instance is running it.
// @Tags schedules
// @Produce json
// @Param id path string true "schedule id"
// @Success 200 {object} APIResponse{data=RunView}
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /mining/schedules/{id}/run [post]
func (c *ScheduleController) RunSchedule(w http.ResponseWriter, r *http.Request) {
	out, err := c.registry.RunNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "scheduled sweep failed", err)
		return
	}
	if out == nil {
		respond(w, r, ConflictResponse("sweep already running", nil))
		return
	}
	respond(w, r, SuccessResponse("ok", runView(out, false)))
}
