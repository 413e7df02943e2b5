package controllers

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/service/config"
	"github.com/hanamichi-me/DW-traffic/service/distributed_lock"
	"github.com/hanamichi-me/DW-traffic/service/mining"
	"github.com/hanamichi-me/DW-traffic/service/models"
	"github.com/hanamichi-me/DW-traffic/service/repository"
	"github.com/hanamichi-me/DW-traffic/service/scheduler"
	"github.com/hanamichi-me/DW-traffic/service/scripting"
	"github.com/hanamichi-me/DW-traffic/testutil"
)

// fixtureProvider serves 4 male/high drivers, 3 female/low pedestrians and
// 3 male/low passengers, projected to the requested attributes.
type fixtureProvider struct{}

func (fixtureProvider) Load(_ context.Context, attributes []string) (association.Table, error) {
	type person struct{ gender, speed, user string }
	var people []person
	add := func(n int, p person) {
		for i := 0; i < n; i++ {
			people = append(people, p)
		}
	}
	add(4, person{"Male", "High", "Driver"})
	add(3, person{"Female", "Low", "Pedestrian"})
	add(3, person{"Male", "Low", "Passenger"})

	cols := make([]association.Column, len(attributes))
	for i, a := range attributes {
		cols[i] = association.Column{Name: a, Type: association.ColumnString}
	}
	schema, err := association.NewSchema(cols...)
	if err != nil {
		return nil, err
	}
	rows := make([][]association.Value, len(people))
	for i, p := range people {
		rows[i] = make([]association.Value, len(attributes))
		for j, a := range attributes {
			switch a {
			case "gender":
				rows[i][j] = association.StringValue(p.gender)
			case "speed_category":
				rows[i][j] = association.StringValue(p.speed)
			case "road_user":
				rows[i][j] = association.StringValue(p.user)
			default:
				rows[i][j] = association.Null()
			}
		}
	}
	return association.NewMemoryTable(schema, rows)
}

type envelope struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

type runEnvelope struct {
	envelope
	Data RunView `json:"data"`
}

type MiningControllerTestSuite struct {
	suite.Suite
	testDB    *testutil.TestDB
	helper    *testutil.HTTPTestHelper
	scheduler *scheduler.SchedulerService
	router    chi.Router
}

func (s *MiningControllerTestSuite) SetupSuite() {
	s.testDB = testutil.NewTestDB()
	s.helper = testutil.NewHTTPTestHelper()
}

func (s *MiningControllerTestSuite) TearDownSuite() {
	s.testDB.Close()
}

func (s *MiningControllerTestSuite) SetupTest() {
	s.testDB.CleanDB()
	defaults := config.Defaults().Mining
	defaults.MinSupport = 0.2
	defaults.TopK = 0

	runs := repository.NewRunRepository(s.testDB.DB)
	schedules := repository.NewScheduleRepository(s.testDB.DB)
	compiler := scripting.NewCompiler()
	svc := mining.NewService(runs, fixtureProvider{}, "fixture", defaults, mining.WithScripts(compiler))
	s.scheduler = scheduler.NewSchedulerService(schedules, svc, distributed_lock.NewLocalLock(), time.Minute)

	mc := NewMiningController(svc)
	sc := NewScheduleController(schedules, s.scheduler)
	script := NewScriptController(compiler)

	r := chi.NewRouter()
	r.Route("/mining", func(r chi.Router) {
		r.Get("/attributes", mc.ListAttributes)
		r.Post("/runs", mc.CreateRun)
		r.Get("/runs", mc.ListRuns)
		r.Get("/runs/{id}", mc.GetRun)
		r.Get("/runs/{id}/rules", mc.GetRunRules)
		r.Get("/runs/{id}/rules.csv", mc.ExportRules)
		r.Post("/sweeps", mc.CreateSweep)
		r.Post("/scripts/validate", script.ValidateScript)
		r.Post("/schedules", sc.CreateSchedule)
		r.Get("/schedules", sc.ListSchedules)
		r.Delete("/schedules/{id}", sc.DeleteSchedule)
		r.Post("/schedules/{id}/run", sc.RunSchedule)
	})
	s.router = r
}

func (s *MiningControllerTestSuite) TearDownTest() {
	s.scheduler.Stop()
}

func (s *MiningControllerTestSuite) do(method, url string, body interface{}) *httptest.ResponseRecorder {
	req, err := s.helper.CreateJSONRequest(method, url, body)
	s.Require().NoError(err)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *MiningControllerTestSuite) createRun() RunView {
	w := s.do(http.MethodPost, "/mining/runs?include_itemsets=true", mining.RunRequest{
		Label:      "gender_speed",
		Attributes: []string{"gender", "speed_category", "road_user"},
	})
	var resp runEnvelope
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &resp)
	return resp.Data
}

func (s *MiningControllerTestSuite) TestCreateRun() {
	view := s.createRun()
	s.Require().NotNil(view.Run)
	s.Equal(models.RunStatusSuccess, view.Run.Status)
	s.False(view.Cached)
	s.Require().Len(view.Rules, 5)
	s.NotEmpty(view.Itemsets)

	top := view.Rules[0]
	s.Equal(1, top.Rank)
	s.Equal([]string{"road_user=Pedestrian"}, top.Consequents)
	s.InDelta(10.0/3.0, top.Lift, 1e-9)
	s.Nil(top.Conviction, "confidence 1 has no finite conviction")
	for i, r := range view.Rules {
		s.Equal(i+1, r.Rank)
		s.Len(r.Consequents, 1)
		s.True(strings.HasPrefix(r.Consequents[0], "road_user="))
	}
}

func (s *MiningControllerTestSuite) TestCreateRun_Errors() {
	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{"bad support", map[string]interface{}{"attributes": []string{"gender", "road_user"}, "min_support": 0}, http.StatusBadRequest},
		{"unknown attribute", map[string]interface{}{"attributes": []string{"gender", "weather"}}, http.StatusBadRequest},
		{"bad script", map[string]interface{}{"attributes": []string{"gender", "road_user"}, "consequent_script": "return 1 +"}, http.StatusBadRequest},
		{"script panics at runtime", map[string]interface{}{"attributes": []string{"gender", "road_user"}, "consequent_script": "return value[5] == 'x'"}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			w := s.do(http.MethodPost, "/mining/runs", tt.body)
			var resp envelope
			s.helper.DecodeJSON(s.T(), w, tt.code, &resp)
			s.Equal(tt.code, resp.Status)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/mining/runs", strings.NewReader("{"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *MiningControllerTestSuite) TestGetRunAndRules() {
	created := s.createRun()

	w := s.do(http.MethodGet, "/mining/runs/"+created.Run.ID, nil)
	var got runEnvelope
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &got)
	s.Equal(created.Run.ID, got.Data.Run.ID)
	s.Len(got.Data.Rules, 5)

	w = s.do(http.MethodGet, "/mining/runs/"+created.Run.ID+"/rules?limit=2", nil)
	var rules struct {
		envelope
		Data []RuleView `json:"data"`
	}
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &rules)
	s.Require().Len(rules.Data, 2)
	s.Equal(created.Rules[0].Antecedents, rules.Data[0].Antecedents)

	w = s.do(http.MethodGet, "/mining/runs/unknown", nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/mining/runs/"+created.Run.ID+"/rules?limit=x", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *MiningControllerTestSuite) TestListRuns() {
	s.createRun()
	s.createRun() // no result cache configured, so this is a second run

	w := s.do(http.MethodGet, "/mining/runs?kind=single&page=1&size=1", nil)
	var page struct {
		envelope
		Data  []models.MiningRun `json:"data"`
		Total int64              `json:"total"`
		Page  int                `json:"page"`
		Size  int                `json:"size"`
	}
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &page)
	s.EqualValues(2, page.Total)
	s.Len(page.Data, 1)
	s.Equal(1, page.Size)

	w = s.do(http.MethodGet, "/mining/runs?kind=sweep", nil)
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &page)
	s.Zero(page.Total)
	s.NotNil(page.Data)
}

func (s *MiningControllerTestSuite) TestExportRules() {
	created := s.createRun()

	w := s.do(http.MethodGet, "/mining/runs/"+created.Run.ID+"/rules.csv", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Header().Get("Content-Type"), "text/csv")

	records, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
	s.Require().NoError(err)
	s.Require().Len(records, 6)
	s.Equal([]string{"antecedents", "consequents", "support", "confidence", "lift"}, records[0])
	s.Equal("{road_user=Pedestrian}", records[1][1])
	s.Equal("3.333", records[1][4])
}

func (s *MiningControllerTestSuite) TestCreateSweep() {
	plan := map[string]interface{}{
		"name":            "api_sweep",
		"base_attributes": []string{"gender", "road_user"},
		"variants": []map[string]interface{}{
			{"label": "speed", "attributes": []string{"speed_category"}},
			{"label": "plain", "attributes": []string{}},
		},
		"min_support": 0.2,
		"top_k":       3,
	}
	w := s.do(http.MethodPost, "/mining/sweeps", plan)
	var resp runEnvelope
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &resp)
	s.Equal(models.RunKindSweep, resp.Data.Run.Kind)
	s.Len(resp.Data.Rules, 3)
	for _, r := range resp.Data.Rules {
		s.Contains([]string{"speed", "plain"}, r.Variant)
	}

	csvResp := s.do(http.MethodGet, "/mining/runs/"+resp.Data.Run.ID+"/rules.csv", nil)
	s.Equal(http.StatusOK, csvResp.Code)
	s.True(strings.HasPrefix(csvResp.Body.String(), "antecedents,consequents,support,confidence,lift,variant"))
}

func (s *MiningControllerTestSuite) TestCreateSweep_YAMLAndErrors() {
	yamlPlan := `
name: yaml_sweep
base_attributes: [gender, road_user]
variants:
  - label: speed
    attributes: [speed_category]
min_support: 0.2
`
	req := httptest.NewRequest(http.MethodPost, "/mining/sweeps", strings.NewReader(yamlPlan))
	req.Header.Set("Content-Type", "application/yaml")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var resp runEnvelope
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &resp)
	s.NotEmpty(resp.Data.Rules)

	w = s.do(http.MethodPost, "/mining/sweeps", map[string]interface{}{"unknown_field": 1})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/mining/sweeps", map[string]interface{}{"min_confidence": 2})
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *MiningControllerTestSuite) TestValidateScript() {
	var resp struct {
		envelope
		Data ValidateScriptResponse `json:"data"`
	}
	w := s.do(http.MethodPost, "/mining/scripts/validate", ValidateScriptRequest{Script: `return attribute == "road_user"`})
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &resp)
	s.True(resp.Data.Valid)

	w = s.do(http.MethodPost, "/mining/scripts/validate", ValidateScriptRequest{Script: "return nope("})
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &resp)
	s.False(resp.Data.Valid)
	s.NotEmpty(resp.Data.Error)
}

func (s *MiningControllerTestSuite) TestSchedules() {
	planYAML := "name: scheduled\nbase_attributes: [gender, road_user]\nvariants:\n  - label: speed\n    attributes: [speed_category]\nmin_support: 0.2\n"
	w := s.do(http.MethodPost, "/mining/schedules", CreateScheduleRequest{
		Name: "nightly", CronExpression: "0 0 2 * * *", PlanYAML: planYAML,
	})
	var created struct {
		envelope
		Data ScheduleView `json:"data"`
	}
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &created)
	s.True(created.Data.Enabled)
	s.NotNil(created.Data.NextRunAt)

	w = s.do(http.MethodPost, "/mining/schedules", CreateScheduleRequest{Name: "nightly", CronExpression: "@daily"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/mining/schedules", CreateScheduleRequest{Name: "broken", CronExpression: "not a cron"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/mining/schedules/"+created.Data.ID+"/run", nil)
	var run runEnvelope
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &run)
	s.Equal(models.RunKindSweep, run.Data.Run.Kind)
	s.Require().NotNil(run.Data.Run.ScheduleID)
	s.Equal(created.Data.ID, *run.Data.Run.ScheduleID)

	w = s.do(http.MethodGet, "/mining/schedules", nil)
	var list struct {
		envelope
		Data []ScheduleView `json:"data"`
	}
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &list)
	s.Require().Len(list.Data, 1)
	s.Equal(models.RunStatusSuccess, list.Data[0].LastStatus)
	s.Require().NotNil(list.Data[0].LastRunID)
	s.Equal(run.Data.Run.ID, *list.Data[0].LastRunID)

	w = s.do(http.MethodDelete, "/mining/schedules/"+created.Data.ID, nil)
	s.Equal(http.StatusOK, w.Code)
	_, registered := s.scheduler.Next(created.Data.ID)
	s.False(registered)

	w = s.do(http.MethodDelete, "/mining/schedules/"+created.Data.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *MiningControllerTestSuite) TestListAttributes() {
	w := s.do(http.MethodGet, "/mining/attributes", nil)
	var resp struct {
		envelope
		Data []string `json:"data"`
	}
	s.helper.DecodeJSON(s.T(), w, http.StatusOK, &resp)
	s.Contains(resp.Data, "road_user")
	s.Contains(resp.Data, "speed_limit")
}

func TestMiningControllerTestSuite(t *testing.T) {
	suite.Run(t, new(MiningControllerTestSuite))
}
