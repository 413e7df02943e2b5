/*
 * @module api/controllers/mining_controller
 * @description Mining run endpoints: run one configuration, run a sweep, browse and export results
 * @architecture Layered - controller layer
 * @stateFlow HTTP request -> decode -> mining.Service -> RunView envelope or CSV
 * @rules Parameter and attribute errors answer 400, candidate explosion and failing scripts 422, unknown runs 404
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, service/mining
 * @refs api/routes.go
 */

package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hanamichi-me/DW-traffic/service/mining"
	"github.com/hanamichi-me/DW-traffic/service/models"
	"github.com/hanamichi-me/DW-traffic/service/records"
	"github.com/hanamichi-me/DW-traffic/service/repository"
	"github.com/hanamichi-me/DW-traffic/service/sweep"
)

// MiningController serves /mining.
type MiningController struct {
	svc *mining.Service
}

// NewMiningController creates a controller over svc.
func NewMiningController(svc *mining.Service) *MiningController {
	return &MiningController{svc: svc}
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s: %w", name, err)
	}
	return v, nil
}

// CreateRun mines one configuration
// @Summary Run association rule mining
// @Description Mines one attribute selection. Omitted thresholds take the configured defaults.
// @Description Identical requests within the cache TTL return the stored run (cached=true).
// @Tags mining
// @Accept json
// @Produce json
// @Param request body mining.RunRequest true "run configuration"
// @Param include_itemsets query bool false "return the frequent itemsets"
// @Success 200 {object} APIResponse{data=RunView}
// @Failure 400 {object} APIResponse "invalid parameter or unknown attribute"
// @Failure 422 {object} APIResponse "candidate ceiling exceeded or consequent script failed"
// @Failure 500 {object} APIResponse
// @Router /mining/runs [post]
func (c *MiningController) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req mining.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond(w, r, BadRequestResponse("invalid request body", err))
		return
	}
	out, err := c.svc.RunOnce(r.Context(), req)
	if err != nil {
		respondError(w, r, "mining run failed", err)
		return
	}
	respond(w, r, SuccessResponse("ok", runView(out, queryBool(r, "include_itemsets"))))
}

// CreateSweep runs a sweep plan
// @Summary Run a parameter sweep
// @Description Body is a plan as JSON (omitted fields take the default plan's values) or YAML
// @Description (Content-Type application/yaml). An empty body runs the default 12-variant plan.
// @Tags mining
// @Accept json
// @Accept application/yaml
// @Produce json
// @Param plan body sweep.Plan false "sweep plan"
// @Success 200 {object} APIResponse{data=RunView}
// @Failure 400 {object} APIResponse
// @Failure 422 {object} APIResponse
// @Failure 500 {object} APIResponse
// @Router /mining/sweeps [post]
func (c *MiningController) CreateSweep(w http.ResponseWriter, r *http.Request) {
	plan, err := decodePlan(r)
	if err != nil {
		respond(w, r, BadRequestResponse("invalid sweep plan", err))
		return
	}
	out, err := c.svc.RunSweep(r.Context(), plan, nil)
	if err != nil {
		respondError(w, r, "sweep failed", err)
		return
	}
	respond(w, r, SuccessResponse("ok", runView(out, false)))
}

func decodePlan(r *http.Request) (sweep.Plan, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return sweep.Plan{}, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return sweep.DefaultPlan(), nil
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return sweep.ParsePlan(strings.NewReader(string(body)))
	}
	plan := sweep.DefaultPlan()
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&plan); err != nil {
		return sweep.Plan{}, err
	}
	return plan, nil
}

// ListRuns pages through runs
// @Summary List mining runs
// @Tags mining
// @Produce json
// @Param kind query string false "single or sweep"
// @Param status query string false "pending, running, success or failed"
// @Param page query int false "page, default 1"
// @Param size query int false "page size, default 20"
// @Success 200 {object} PaginatedResponse{data=[]models.MiningRun}
// @Router /mining/runs [get]
func (c *MiningController) ListRuns(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		respond(w, r, BadRequestResponse("invalid query", err))
		return
	}
	size, err := queryInt(r, "size", 20)
	if err != nil {
		respond(w, r, BadRequestResponse("invalid query", err))
		return
	}
	q := repository.ListRunsQuery{
		Kind:     r.URL.Query().Get("kind"),
		Status:   r.URL.Query().Get("status"),
		Page:     page,
		PageSize: size,
	}
	runs, total, err := c.svc.List(r.Context(), q)
	if err != nil {
		respondError(w, r, "list runs failed", err)
		return
	}
	if runs == nil {
		runs = []models.MiningRun{}
	}
	respondPage(w, r, runs, total, page, size)
}

// GetRun returns a run and its rules
// @Summary Get a mining run
// @Tags mining
// @Produce json
// @Param id path string true "run id"
// @Success 200 {object} APIResponse{data=RunView}
// @Failure 404 {object} APIResponse
// @Router /mining/runs/{id} [get]
func (c *MiningController) GetRun(w http.ResponseWriter, r *http.Request) {
	out, err := c.svc.Load(r.Context(), chi.URLParam(r, "id"), "", 0)
	if err != nil {
		respondError(w, r, "get run failed", err)
		return
	}
	respond(w, r, SuccessResponse("ok", runView(out, false)))
}

// GetRunRules returns the ranked rules of a run
// @Summary List the rules of a run
// @Tags mining
// @Produce json
// @Param id path string true "run id"
// @Param variant query string false "only rules of this sweep variant"
// @Param limit query int false "maximum number of rules"
// @Success 200 {object} APIResponse{data=[]RuleView}
// @Failure 404 {object} APIResponse
// @Router /mining/runs/{id}/rules [get]
func (c *MiningController) GetRunRules(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respond(w, r, BadRequestResponse("invalid query", err))
		return
	}
	out, err := c.svc.Load(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("variant"), limit)
	if err != nil {
		respondError(w, r, "get rules failed", err)
		return
	}
	views := ruleViews(out.Rules)
	respond(w, r, SuccessResponse("ok", views))
}

// ExportRules writes the rules of a run as CSV
// @Summary Export the rules of a run as CSV
// @Description Columns antecedents, consequents, support, confidence, lift (and variant for sweeps); metrics rounded to 3 decimals.
// @Tags mining
// @Produce text/csv
// @Param id path string true "run id"
// @Success 200 {string} string "CSV"
// @Failure 404 {object} APIResponse
// @Router /mining/runs/{id}/rules.csv [get]
func (c *MiningController) ExportRules(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := c.svc.Load(r.Context(), id, "", 0)
	if err != nil {
		respondError(w, r, "export failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="rules_%s.csv"`, id))
	if err := mining.WriteRulesCSV(w, out.Rules, out.Run.Kind == models.RunKindSweep); err != nil {
		// status already sent
		slog.Error("write rules csv", "run_id", id, "error", err)
	}
}

// ListAttributes lists the minable warehouse attributes
// @Summary List minable attributes
// @Tags mining
// @Produce json
// @Success 200 {object} APIResponse{data=[]string}
// @Router /mining/attributes [get]
func (c *MiningController) ListAttributes(w http.ResponseWriter, r *http.Request) {
	respond(w, r, SuccessResponse("ok", records.AttributeNames()))
}

func respondPage(w http.ResponseWriter, r *http.Request, data interface{}, total int64, page, size int) {
	render.JSON(w, r, PaginatedResponse{
		Status: 0, Msg: "ok", Data: data, Total: total, Page: page, Size: size,
	})
}
