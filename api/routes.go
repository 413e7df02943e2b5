/*
 * @module api/routes
 * @description 关联规则挖掘服务的HTTP路由配置
 * @architecture RESTful API设计
 * @stateFlow stateless request handling
 * @rules Unified envelope and error mapping; request logging, recovery and request ids on every route
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 */

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/hanamichi-me/DW-traffic/api/controllers"
	apimw "github.com/hanamichi-me/DW-traffic/api/middleware"
	"github.com/hanamichi-me/DW-traffic/service"
)

// Handlers groups the controllers mounted by Mount.
type Handlers struct {
	Health    *controllers.HealthController
	Mining    *controllers.MiningController
	Schedules *controllers.ScheduleController
	Scripts   *controllers.ScriptController

	// SubmitLimit wraps the endpoints that start mining; nil means unlimited.
	SubmitLimit func(http.Handler) http.Handler
}

// InitRoute mounts every route backed by the service globals.
func InitRoute(r *chi.Mux) {
	h := Handlers{
		Health:    controllers.NewHealthController(service.Ping),
		Mining:    controllers.NewMiningController(service.GlobalMiningService),
		Schedules: controllers.NewScheduleController(service.GlobalScheduleRepository, service.GlobalSchedulerService),
		Scripts:   controllers.NewScriptController(service.GlobalScriptCompiler),
	}
	if service.GlobalRateLimiter != nil {
		rl := service.Config.RateLimit
		h.SubmitLimit = apimw.RateLimit(service.GlobalRateLimiter, apimw.RateLimitOptions{
			Window:    rl.Window,
			PerClient: rl.PerClient,
			Global:    rl.Global,
		})
	}
	Mount(r, h)
}

// Mount installs middleware and routes on r.
func Mount(r chi.Router, h Handlers) {
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)

	submit := func(r chi.Router) chi.Router {
		if h.SubmitLimit == nil {
			return r
		}
		return r.With(h.SubmitLimit)
	}

	r.Route("/mining", func(r chi.Router) {
		r.Get("/attributes", h.Mining.ListAttributes)

		r.Route("/runs", func(r chi.Router) {
			submit(r).Post("/", h.Mining.CreateRun)
			r.Get("/", h.Mining.ListRuns)
			r.Get("/{id}", h.Mining.GetRun)
			r.Get("/{id}/rules", h.Mining.GetRunRules)
			r.Get("/{id}/rules.csv", h.Mining.ExportRules)
		})

		submit(r).Post("/sweeps", h.Mining.CreateSweep)
		r.Post("/scripts/validate", h.Scripts.ValidateScript)

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", h.Schedules.CreateSchedule)
			r.Get("/", h.Schedules.ListSchedules)
			r.Delete("/{id}", h.Schedules.DeleteSchedule)
			submit(r).Post("/{id}/run", h.Schedules.RunSchedule)
		})
	})
}
