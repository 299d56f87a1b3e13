package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiranshivaraju/livewatch/internal/api"
	"github.com/kiranshivaraju/livewatch/internal/cache"
	"github.com/kiranshivaraju/livewatch/internal/config"
	"github.com/kiranshivaraju/livewatch/internal/session"
	"github.com/kiranshivaraju/livewatch/internal/store"
	"github.com/kiranshivaraju/livewatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock journal store ──────────────────────────────────────────────────────

type testStore struct {
	pingErr error
}

func (s *testStore) Ping(_ context.Context) error { return s.pingErr }
func (s *testStore) ListDiagnostics(_ context.Context, _ store.DiagnosticFilter) ([]*models.Diagnostic, int, error) {
	return nil, 0, nil
}
func (s *testStore) ListSettlements(_ context.Context, _ string) ([]*models.Settlement, error) {
	return nil, nil
}
func (s *testStore) GetSettlement(_ context.Context, _, _ string) (*models.Settlement, error) {
	return nil, store.ErrNotFound
}

var _ journalStore = (*testStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type testCache struct {
	pingErr error
}

func (c *testCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *testCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *testCache) Delete(_ context.Context, _ string) error                          { return nil }
func (c *testCache) Ping(_ context.Context) error                                      { return c.pingErr }
func (c *testCache) SetJobStatus(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
func (c *testCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

var _ cache.Cache = (*testCache)(nil)

// ─── mock upstream ───────────────────────────────────────────────────────────

type pendingUpstream struct{}

func (pendingUpstream) Result(context.Context, string) (*models.JobSnapshot, error) {
	return nil, errors.New("not started")
}
func (pendingUpstream) JobStatus(context.Context, string) (*models.JobStatusReport, error) {
	return &models.JobStatusReport{Status: models.JobStatusPending}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ContaMiner: config.ContaMinerConfig{APIURL: "https://contaminer.test/api"},
		Page:       config.PageConfig{UglymolURL: "https://contaminer.test/uglymol/", PercentThreshold: 95},
		Poll: config.PollConfig{
			ResultsInterval: time.Minute,
			StatusInterval:  time.Hour,
			SessionIdleTTL:  30 * time.Minute,
		},
		RateLimit: config.RateLimitConfig{PerMinute: 60},
	}
}

// ─── wiring tests ────────────────────────────────────────────────────────────

func TestSessionConfig(t *testing.T) {
	sc := sessionConfig(testConfig())

	assert.Equal(t, session.Config{
		APIURL:           "https://contaminer.test/api",
		UglymolURL:       "https://contaminer.test/uglymol/",
		PercentThreshold: 95,
		ResultsInterval:  time.Minute,
		StatusInterval:   time.Hour,
		IdleTTL:          30 * time.Minute,
	}, sc)
}

func TestDependencies_AllRoutesWired(t *testing.T) {
	cfg := testConfig()
	reg := session.NewRegistry(sessionConfig(cfg), pendingUpstream{}, nil, nil)
	t.Cleanup(reg.Shutdown)

	router := api.NewRouter(dependencies(cfg, reg, &testStore{}, &testCache{}))

	for _, path := range []string{"/api/v1/health", "/jobs/9", "/api/v1/jobs/9/page"} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}

	// admin routes are disabled without a token hash
	for _, path := range []string{"/api/v1/admin/jobs/9/settlements", "/api/v1/admin/jobs/9/settlements/P1"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	}
}

func TestDependencies_HealthDegraded(t *testing.T) {
	cfg := testConfig()
	reg := session.NewRegistry(sessionConfig(cfg), pendingUpstream{}, nil, nil)
	t.Cleanup(reg.Shutdown)

	router := api.NewRouter(dependencies(cfg, reg, &testStore{}, &testCache{pingErr: errors.New("redis down")}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	assert.Equal(t, "degraded", errObj["details"].(map[string]any)["cache"])
}

// ─── .env loading ────────────────────────────────────────────────────────────

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnv_ReadsFileWithoutOverriding(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LIVEWATCH_DOTENV_TEST=from-file\nLIVEWATCH_ENV=from-file\n"), 0o600))
	t.Setenv("LIVEWATCH_ENV", "from-env")
	t.Cleanup(func() { os.Unsetenv("LIVEWATCH_DOTENV_TEST") })

	require.NoError(t, loadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("LIVEWATCH_DOTENV_TEST"))
	assert.Equal(t, "from-env", os.Getenv("LIVEWATCH_ENV"))
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	clearConfigEnv(t)

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("CONTAMINER_API_URL", "http://localhost:8000/api")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}

// ─── helper: clear env ──────────────────────────────────────────────────────

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "CONTAMINER_API_URL", "CONTAMINER_JOB_STATUS_URL",
		"PERCENT_THRESHOLD", "POLL_RESULTS_INTERVAL", "POLL_STATUS_INTERVAL", "RATE_LIMIT_PER_MINUTE",
	} {
		t.Setenv(key, "")
	}
}
