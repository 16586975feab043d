package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"proof-reward-system/models"
	"proof-reward-system/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testModeratorKey = "mod-secret"

var testDBCounter int64

type stubDistributor struct {
	calls  int32
	result services.DistributionResult
	err    error
}

func (s *stubDistributor) DistributeReward(context.Context, string, bool) (services.DistributionResult, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.result, s.err
}

type testServer struct {
	app         *fiber.App
	db          *gorm.DB
	distributor *stubDistributor
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	counter := atomic.AddInt64(&testDBCounter, 1)
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:handlersdb%d?mode=memory&cache=shared", counter)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.Migrate(db))
	return db
}

func setupTestServer(t *testing.T, moderatorKey string) *testServer {
	t.Helper()
	db := setupTestDB(t)

	reg := prometheus.NewRegistry()
	metrics := services.NewMetrics(reg)
	repo := services.NewSubmissionRepository(db, nil)
	dist := &stubDistributor{result: services.DistributionResult{Success: true, TxID: "0xfeed"}}
	svc := services.NewSubmissionService(repo, nil, metrics, nil, nil)
	coordinator := services.NewClaimCoordinator(repo, dist, nil, nil, metrics, nil,
		services.ClaimCoordinatorConfig{DistributionTimeout: time.Second}, nil)

	app := NewApp(AppConfig{}, metrics, nil)
	SetupSubmissionRoutes(app, svc, coordinator, SubmissionRoutesConfig{
		ModeratorKey: moderatorKey,
		ClaimTimeout: 2 * time.Second,
	}, nil)
	SetupHealthRoutes(app, db, reg)

	return &testServer{app: app, db: db, distributor: dist}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) doList(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, path, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func moderator() map[string]string {
	return map[string]string{"X-Moderator-Key": testModeratorKey}
}

func submitBody(wallet string) map[string]string {
	return map[string]string{"walletAddress": wallet, "name": "Ada", "proofLink": "https://example.org/cert"}
}

func TestSubmit_DuplicateVariant(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)

	status, body := s.do(t, http.MethodPost, "/api/submissions", submitBody("0xABC"), nil)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "0xabc", body["walletAddress"])

	status, body = s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc "), nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "You have already submitted a proof", body["message"])

	status, body = s.do(t, http.MethodGet, "/api/submissions/0xabc", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["submitted"])
	assert.Equal(t, false, body["approved"])
	assert.Equal(t, false, body["claimed"])
	assert.Equal(t, "pending", body["status"])
}

func TestSubmit_Validation(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)

	status, body := s.do(t, http.MethodPost, "/api/submissions", map[string]string{"walletAddress": "0xabc"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_FIELDS", body["code"])

	status, body = s.do(t, http.MethodPost, "/api/submissions",
		map[string]string{"walletAddress": "0xabc", "name": "n", "proofLink": "not a link"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_PROOF_LINK", body["code"])
}

func TestStatus_NotFound(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)
	status, body := s.do(t, http.MethodGet, "/api/submissions/0xnobody", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestModeration(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)
	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc"), nil)
	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xdef"), nil)

	t.Run("requires the moderator key", func(t *testing.T) {
		status, _ := s.do(t, http.MethodPut, "/api/submissions/0xabc/approve", map[string]bool{"approved": true}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _ = s.do(t, http.MethodPut, "/api/submissions/0xabc/approve", map[string]bool{"approved": true},
			map[string]string{"X-Moderator-Key": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("approve via PUT", func(t *testing.T) {
		status, body := s.do(t, http.MethodPut, "/api/submissions/0xABC/approve",
			map[string]interface{}{"approved": true, "moderatorNotes": "verified"}, moderator())
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["approved"])

		status, body = s.do(t, http.MethodGet, "/api/submissions/0xabc", nil, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, body["approved"])
		assert.Equal(t, "verified", body["moderatorNotes"])
		assert.NotNil(t, body["approvedAt"])
	})

	t.Run("PUT without approved flag", func(t *testing.T) {
		status, _ := s.do(t, http.MethodPut, "/api/submissions/0xdef/approve", map[string]string{"moderatorNotes": "x"}, moderator())
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("reject via dashboard route", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, "/api/submissions/0xdef/reject", map[string]string{"moderatorNotes": "blurry"}, moderator())
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, false, body["approved"])
	})

	t.Run("second decision conflicts", func(t *testing.T) {
		status, body := s.do(t, http.MethodPost, "/api/submissions/0xdef/approve", nil, moderator())
		assert.Equal(t, http.StatusConflict, status)
		assert.Equal(t, "ALREADY_REVIEWED", body["code"])
	})

	t.Run("unknown wallet", func(t *testing.T) {
		status, _ := s.do(t, http.MethodPost, "/api/submissions/0x999/approve", nil, moderator())
		assert.Equal(t, http.StatusNotFound, status)
	})

	approved := s.doList(t, "/api/submissions/approved")
	require.Len(t, approved, 1)
	assert.Equal(t, "0xabc", approved[0]["walletAddress"])

	all := s.doList(t, "/api/submissions")
	assert.Len(t, all, 2)
}

func TestModeration_NotConfigured(t *testing.T) {
	s := setupTestServer(t, "")
	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc"), nil)

	status, body := s.do(t, http.MethodPut, "/api/submissions/0xabc/approve", map[string]bool{"approved": true},
		map[string]string{"X-Moderator-Key": ""})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Server not configured for moderation", body["message"])
}

func TestClaim_Lifecycle(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)
	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc"), nil)

	// pending: not approved, collaborator untouched
	status, body := s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "No approved submission found for this wallet address", body["message"])
	assert.Equal(t, int32(0), atomic.LoadInt32(&s.distributor.calls))

	s.do(t, http.MethodPost, "/api/submissions/0xabc/approve", nil, moderator())

	status, body = s.do(t, http.MethodPost, "/api/submissions/0xABC/claim", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0xfeed", body["txId"])

	status, body = s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Reward has already been claimed", body["message"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&s.distributor.calls))

	status, body = s.do(t, http.MethodGet, "/api/submissions/0xabc", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["claimed"])
	assert.Equal(t, "0xfeed", body["transactionHash"])
}

func TestClaim_CollaboratorFailure(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)
	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc"), nil)
	s.do(t, http.MethodPost, "/api/submissions/0xabc/approve", nil, moderator())

	s.distributor.result = services.DistributionResult{Success: false, Error: "insufficient funds"}
	status, body := s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Smart contract transaction failed: insufficient funds", body["message"])

	status, body = s.do(t, http.MethodGet, "/api/submissions/0xabc", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "approved", body["status"])
	assert.Nil(t, body["transactionHash"])

	s.distributor.result = services.DistributionResult{Success: true, TxID: "0xretry"}
	status, body = s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0xretry", body["txId"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)

	status, body := s.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc"), nil)

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "proof_reward_submissions_total 1")
}

func TestUnknownRoute(t *testing.T) {
	s := setupTestServer(t, testModeratorKey)
	status, _ := s.do(t, http.MethodGet, "/api/nothing-here", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// blockingClaimer behaves like the coordinator when the transfer outlives the request
type blockingClaimer struct {
	err error
}

func (b blockingClaimer) Claim(ctx context.Context, wallet string) (*services.ClaimResult, error) {
	if b.err != nil {
		return nil, b.err
	}
	<-ctx.Done()
	return nil, services.ErrClaimPending
}

func setupClaimServer(t *testing.T, claimer Claimer) *testServer {
	t.Helper()
	db := setupTestDB(t)
	svc := services.NewSubmissionService(services.NewSubmissionRepository(db, nil), nil, nil, nil, nil)

	app := NewApp(AppConfig{}, nil, nil)
	SetupSubmissionRoutes(app, svc, claimer, SubmissionRoutesConfig{
		ModeratorKey: testModeratorKey,
		ClaimTimeout: 50 * time.Millisecond,
	}, nil)
	return &testServer{app: app, db: db}
}

func TestClaim_PendingWhenTransferOutlivesRequest(t *testing.T) {
	s := setupClaimServer(t, blockingClaimer{})

	status, body := s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "CLAIM_PENDING", body["code"])
	assert.Equal(t, true, body["pending"])
}

func TestClaim_InProgress(t *testing.T) {
	s := setupClaimServer(t, blockingClaimer{err: services.ErrClaimInProgress})

	status, body := s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CLAIM_IN_PROGRESS", body["code"])
}

func TestClaim_PendingThroughCoordinator(t *testing.T) {
	db := setupTestDB(t)
	repo := services.NewSubmissionRepository(db, nil)
	svc := services.NewSubmissionService(repo, nil, nil, nil, nil)

	release := make(chan struct{})
	dist := &gatedDistributor{release: release}
	coordinator := services.NewClaimCoordinator(repo, dist, nil, nil, nil, nil,
		services.ClaimCoordinatorConfig{DistributionTimeout: 5 * time.Second}, nil)

	app := NewApp(AppConfig{}, nil, nil)
	SetupSubmissionRoutes(app, svc, coordinator, SubmissionRoutesConfig{
		ModeratorKey: testModeratorKey,
		ClaimTimeout: 50 * time.Millisecond,
	}, nil)
	s := &testServer{app: app, db: db}

	s.do(t, http.MethodPost, "/api/submissions", submitBody("0xabc"), nil)
	s.do(t, http.MethodPost, "/api/submissions/0xabc/approve", nil, moderator())

	status, body := s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, true, body["pending"])

	status, body = s.do(t, http.MethodPost, "/api/submissions/0xabc/claim", nil, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CLAIM_IN_PROGRESS", body["code"])

	close(release)
	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, coordinator.Wait(waitCtx))

	status, body = s.do(t, http.MethodGet, "/api/submissions/0xabc", nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["claimed"])
	assert.Equal(t, "0xgated", body["transactionHash"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&dist.calls))
}

type gatedDistributor struct {
	calls   int32
	release chan struct{}
}

func (g *gatedDistributor) DistributeReward(context.Context, string, bool) (services.DistributionResult, error) {
	atomic.AddInt32(&g.calls, 1)
	<-g.release
	return services.DistributionResult{Success: true, TxID: "0xgated"}, nil
}
