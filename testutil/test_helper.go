/*
 * @module testutil/test_helper
 * @description Shared test infrastructure: in-memory database, data factory and HTTP helpers
 * @architecture Test infrastructure - reusable fixtures for repository, service and API tests
 * @stateFlow NewTestDB -> factory creates runs/rules/schedules -> test -> Close
 * @rules Every NewTestDB call is an isolated database; helpers panic or fail the test on setup errors
 * @dependencies gorm, sqlite, testify
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hanamichi-me/DW-traffic/service/association"
	"github.com/hanamichi-me/DW-traffic/service/database"
	"github.com/hanamichi-me/DW-traffic/service/models"
)

// TestDB wraps an in-memory SQLite database.
type TestDB struct {
	DB *gorm.DB
}

// NewTestDB opens a fresh, migrated in-memory database.
func NewTestDB() *TestDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(fmt.Sprintf("failed to connect test database: %v", err))
	}

	// one connection, otherwise each pooled connection sees its own empty :memory: database
	sqlDB, err := db.DB()
	if err != nil {
		panic(fmt.Sprintf("failed to get sql.DB: %v", err))
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		panic(fmt.Sprintf("failed to migrate test database: %v", err))
	}
	return &TestDB{DB: db}
}

// CleanDB empties every table.
func (tdb *TestDB) CleanDB() {
	for _, table := range []string{"mined_rules", "mining_runs", "scheduled_sweeps"} {
		tdb.DB.Exec(fmt.Sprintf("DELETE FROM %s", table))
	}
}

// Close closes the connection.
func (tdb *TestDB) Close() {
	if db, err := tdb.DB.DB(); err == nil {
		db.Close()
	}
}

// TestDataFactory creates persisted fixtures.
type TestDataFactory struct {
	DB *gorm.DB
}

// NewTestDataFactory creates a factory over db.
func NewTestDataFactory(db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db}
}

// MiningRunOption customises CreateMiningRun.
type MiningRunOption func(*models.MiningRun)

// CreateMiningRun inserts a finished single run.
func (f *TestDataFactory) CreateMiningRun(opts ...MiningRunOption) *models.MiningRun {
	now := time.Now()
	run := &models.MiningRun{
		Kind:      models.RunKindSingle,
		Label:     "test_run_" + generateSuffix(),
		Status:    models.RunStatusSuccess,
		Config:    models.JSONB{"min_support": 0.02},
		StartTime: &now,
		EndTime:   &now,
	}
	for _, opt := range opts {
		opt(run)
	}
	if err := f.DB.Create(run).Error; err != nil {
		panic(fmt.Sprintf("failed to create test mining run: %v", err))
	}
	return run
}

// CreateMinedRules inserts rules for runID in the given rank order.
func (f *TestDataFactory) CreateMinedRules(runID string, rules []association.Rule) []models.MinedRule {
	mined := models.NewMinedRules(runID, rules)
	if len(mined) == 0 {
		return mined
	}
	if err := f.DB.Create(&mined).Error; err != nil {
		panic(fmt.Sprintf("failed to create test mined rules: %v", err))
	}
	return mined
}

// ScheduledSweepOption customises CreateScheduledSweep.
type ScheduledSweepOption func(*models.ScheduledSweep)

// CreateScheduledSweep inserts an enabled schedule running the default plan hourly.
func (f *TestDataFactory) CreateScheduledSweep(opts ...ScheduledSweepOption) *models.ScheduledSweep {
	s := &models.ScheduledSweep{
		Name:           "test_schedule_" + generateSuffix(),
		CronExpression: "0 0 * * * *",
		Enabled:        true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := f.DB.Create(s).Error; err != nil {
		panic(fmt.Sprintf("failed to create test scheduled sweep: %v", err))
	}
	return s
}

// SampleRules returns three ranked rules, the last with unbounded conviction.
func SampleRules() []association.Rule {
	return []association.Rule{
		{
			Antecedent: association.NewItemset("speed_category=High", "gender=Male"),
			Consequent: association.NewItemset("road_user=Driver"),
			Support:    0.21, Confidence: 0.8123, Lift: 1.6049, Leverage: 0.08, Conviction: 2.5,
			Variant: "category_easter_bus",
		},
		{
			Antecedent: association.NewItemset("age_group=75_or_older"),
			Consequent: association.NewItemset("road_user=Pedestrian"),
			Support:    0.05, Confidence: 0.6666, Lift: 1.3, Leverage: 0.01, Conviction: 1.4,
			Variant: "limit_christmas_heavy",
		},
		{
			Antecedent: association.NewItemset("crash_type=Single"),
			Consequent: association.NewItemset("road_user=Driver"),
			Support:    0.3, Confidence: 1, Lift: 1.1, Leverage: 0.03, Conviction: association.Unbounded,
			Variant: "limit_easter_bus",
		},
	}
}

func generateSuffix() string {
	return fmt.Sprintf("%d", time.Now().UnixNano()%1000000)
}

// HTTPTestHelper builds requests and checks responses.
type HTTPTestHelper struct{}

// NewHTTPTestHelper creates a helper.
func NewHTTPTestHelper() *HTTPTestHelper {
	return &HTTPTestHelper{}
}

// CreateJSONRequest builds a request with body marshalled as JSON.
func (h *HTTPTestHelper) CreateJSONRequest(method, url string, body interface{}) (*http.Request, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DecodeJSON asserts the status code and decodes the body into out.
func (h *HTTPTestHelper) DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, out interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
