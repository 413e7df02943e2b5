/*
 * @module api/controllers/health_controller
 * @description 健康检查控制器，提供存活和就绪状态检查
 * @architecture 分层架构 - 控制器层
 * @rules /health never touches dependencies; /ready answers 503 while the run store is unreachable
 * @dependencies github.com/go-chi/render
 */

package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

const serviceName = "association-rule-mining"

// Version is stamped at build time.
var Version = "1.0.0"

// HealthController serves liveness and readiness checks.
type HealthController struct {
	ping func(ctx context.Context) error
}

// NewHealthController creates a controller; ping checks the run store and may be nil.
func NewHealthController(ping func(ctx context.Context) error) *HealthController {
	return &HealthController{ping: ping}
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status    string    `json:"status" example:"ok"`
	Timestamp time.Time `json:"timestamp" example:"2024-01-01T00:00:00Z"`
	Version   string    `json:"version" example:"1.0.0"`
	Service   string    `json:"service" example:"association-rule-mining"`
	Error     string    `json:"error,omitempty"`
}

// Health liveness check
// @Summary Liveness check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{Status: "ok", Timestamp: time.Now(), Version: Version, Service: serviceName})
}

// Ready readiness check
// @Summary Readiness check
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ready", Timestamp: time.Now(), Version: Version, Service: serviceName}
	if c.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.ping(ctx); err != nil {
			resp.Status = "unavailable"
			resp.Error = err.Error()
			render.Status(r, http.StatusServiceUnavailable)
		}
	}
	render.JSON(w, r, resp)
}
