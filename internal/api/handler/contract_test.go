package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thalloran/vitalog/internal/analysis"
	"github.com/thalloran/vitalog/internal/api"
	"github.com/thalloran/vitalog/internal/api/handler"
	mw "github.com/thalloran/vitalog/internal/api/middleware"
	"github.com/thalloran/vitalog/internal/cache"
	"github.com/thalloran/vitalog/internal/store"
	"github.com/thalloran/vitalog/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var (
	testUserID   = uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	testRawKey   = "vl_contract_key_1234567890"
	testPrefix   = testRawKey[:8]
	testRecordID = uuid.MustParse("cccccccc-cccc-cccc-cccc-cccccccccccc")
)

func testKeyHash() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	return string(h)
}

func testRecord() *models.AnalysisRecord {
	return &models.AnalysisRecord{
		ID:     testRecordID,
		UserID: testUserID,
		Kind:   models.KindNutrition,
		InputBundle: models.InputBundle{
			Kind:             models.KindNutrition,
			DistinctDayCount: 3,
		},
		Result: models.StructuredResult{
			Insights:         []string{"a", "b", "c", "d", "e"},
			Recommendations:  []string{"a", "b", "c", "d", "e"},
			Confidence:       0.85,
			Summary:          "Intake is broadly on target",
			DetailedAnalysis: "Detailed analysis",
			ModelID:          "mock-v1",
		},
		CreatedAt: time.Now().UTC(),
	}
}

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	keys    []*models.APIKey
	records map[uuid.UUID]*models.AnalysisRecord
}

func newMockStore() *mockStore {
	return &mockStore{
		keys: []*models.APIKey{{
			ID:        uuid.New(),
			UserID:    testUserID,
			Name:      "contract-key",
			KeyHash:   testKeyHash(),
			KeyPrefix: testPrefix,
			Scopes:    []string{"read", "write", "admin"},
		}},
		records: map[uuid.UUID]*models.AnalysisRecord{testRecordID: testRecord()},
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }
func (s *mockStore) GetDefaultUser(_ context.Context) (*models.User, error) {
	return &models.User{ID: testUserID, Email: "default@vitalog.local"}, nil
}
func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}
func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }
func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	s.keys = append(s.keys, key)
	return nil
}
func (s *mockStore) ListAPIKeys(_ context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}
func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID, userID uuid.UUID) error {
	for i, k := range s.keys {
		if k.ID == id && k.UserID == userID {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}
func (s *mockStore) CreateAnalysisRecord(_ context.Context, rec *models.AnalysisRecord) error {
	s.records[rec.ID] = rec
	return nil
}
func (s *mockStore) GetAnalysisRecord(_ context.Context, id, userID uuid.UUID) (*models.AnalysisRecord, error) {
	if rec, ok := s.records[id]; ok && rec.UserID == userID {
		return rec, nil
	}
	return nil, store.ErrNotFound
}
func (s *mockStore) AttachSecondOpinion(_ context.Context, id uuid.UUID, op models.SecondOpinion) (*models.SecondOpinion, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rec.SecondOpinions = append(rec.SecondOpinions, op)
	return &op, nil
}

var _ store.Store = (*mockStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{counters: make(map[string]int64)}
}

func (c *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *mockCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *mockCache) Ping(_ context.Context) error                                     { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── mock analysis service ───────────────────────────────────────────────────

type mockAnalysisService struct {
	store *mockStore
}

func (m *mockAnalysisService) RunAnalysis(ctx context.Context, req analysis.Request) (*models.AnalysisRecord, error) {
	rec := testRecord()
	rec.ID = uuid.New()
	rec.UserID = req.UserID
	rec.Kind = req.Kind
	if err := m.store.CreateAnalysisRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *mockAnalysisService) GetAnalysis(ctx context.Context, userID, id uuid.UUID) (*models.AnalysisRecord, error) {
	return m.store.GetAnalysisRecord(ctx, id, userID)
}

func (m *mockAnalysisService) RequestSecondOpinion(ctx context.Context, userID, recordID uuid.UUID, backend string) (*models.SecondOpinion, error) {
	if backend == "unconfigured" {
		return nil, models.ErrBackendNotConfigured
	}
	if _, err := m.store.GetAnalysisRecord(ctx, recordID, userID); err != nil {
		return nil, err
	}
	return m.store.AttachSecondOpinion(ctx, recordID, models.SecondOpinion{
		Text:      "Broad agreement between the two runs.",
		ModelID:   backend,
		CreatedAt: time.Now().UTC(),
	})
}

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server *httptest.Server
	store  *mockStore
	cache  *mockCache
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ms := newMockStore()
	mc := newMockCache()
	svc := &mockAnalysisService{store: ms}

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, 10), // low limit for rate-limit tests

		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data":{"status":"ok"}}`))
		},
		AnalyzeHandler:       handler.NewAnalyzeHandler(svc),
		GetAnalysisHandler:   handler.NewGetAnalysisHandler(svc),
		SecondOpinionHandler: handler.NewSecondOpinionHandler(svc),
		CreateKeyHandler:     handler.NewCreateKeyHandler(ms),
		ListKeysHandler:      handler.NewListKeysHandler(ms),
		RevokeKeyHandler:     handler.NewRevokeKeyHandler(ms),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, cache: mc}
}

func (ts *testServer) authRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) unauthRequest(method, path string) *http.Request {
	req, _ := http.NewRequest(method, ts.server.URL+path, nil)
	return req
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// ═══════════════════════════════════════════════════════════════════════════════
// CONTRACT TESTS
// ═══════════════════════════════════════════════════════════════════════════════

// ─── GET /api/v1/health ──────────────────────────────────────────────────────

func TestHealth_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	// Health endpoint must be accessible without auth
	resp, err := http.DefaultClient.Do(ts.unauthRequest("GET", "/api/v1/health"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ─── POST /api/v1/analyses ──────────────────────────────────────────────────

func TestAnalyses_201_FullShape(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/analyses", map[string]any{
		"kind": "nutrition",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["id"])

	result := data["result"].(map[string]any)
	assert.Len(t, result["insights"], 5)
	assert.Len(t, result["recommendations"], 5)
	assert.Equal(t, 0.85, result["confidence"])
	assert.NotEmpty(t, result["summary"])
	assert.NotEmpty(t, result["model_id"])
}

func TestAnalyses_400_BadKind(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/analyses", map[string]any{
		"kind": "tarot",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
}

// ─── GET /api/v1/analyses/{analysisID} ──────────────────────────────────────

func TestGetAnalysis_200_Stored(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analyses/"+testRecordID.String(), nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, testRecordID.String(), data["id"])
	assert.Equal(t, "nutrition", data["kind"])
}

func TestGetAnalysis_404_Missing(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analyses/"+uuid.NewString(), nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

// ─── POST /api/v1/analyses/{analysisID}/second-opinion ──────────────────────

func TestSecondOpinion_201_Attached(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST",
		"/api/v1/analyses/"+testRecordID.String()+"/second-opinion",
		map[string]string{"backend": "gemini"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "gemini", data["model_id"])
	assert.NotEmpty(t, data["text"])

	// Opinion is visible on subsequent reads of the record.
	rec := ts.store.records[testRecordID]
	require.Len(t, rec.SecondOpinions, 1)
}

func TestSecondOpinion_400_UnconfiguredBackend(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST",
		"/api/v1/analyses/"+testRecordID.String()+"/second-opinion",
		map[string]string{"backend": "unconfigured"}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "BACKEND_NOT_CONFIGURED", errObj["code"])
}

// ─── POST /api/v1/admin/keys ────────────────────────────────────────────────

func TestCreateKey_201_WithRawKey(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{
		"name":   "my-new-key",
		"scopes": []string{"read", "write"},
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.NotEmpty(t, data["id"])
	assert.NotEmpty(t, data["key"]) // raw key shown at creation
	assert.Equal(t, "my-new-key", data["name"])
}

func TestListKeys_DoesNotExposeHash(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/admin/keys", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].([]any)
	require.NotEmpty(t, data)

	firstKey := data[0].(map[string]any)
	assert.NotEmpty(t, firstKey["key_prefix"])
	assert.Nil(t, firstKey["key"])      // raw key NOT exposed
	assert.Nil(t, firstKey["key_hash"]) // hash NOT exposed
}

// ─── Auth middleware contract ────────────────────────────────────────────────

func TestAuth_AllProtectedEndpoints_Reject401(t *testing.T) {
	ts := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/analyses"},
		{"GET", "/api/v1/analyses/" + testRecordID.String()},
		{"POST", "/api/v1/analyses/" + testRecordID.String() + "/second-opinion"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			resp, err := http.DefaultClient.Do(ts.unauthRequest(ep.method, ep.path))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body := parseBody(t, resp)
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

// ─── Rate limiting contract ─────────────────────────────────────────────────

func TestRateLimit_Headers_Present(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analyses/"+testRecordID.String(), nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
}

func TestRateLimit_429_Exceeded(t *testing.T) {
	ts := newTestServer(t)

	// The rate limit is set to 10 in newTestServer
	var lastResp *http.Response
	for i := 0; i < 11; i++ {
		resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analyses/"+testRecordID.String(), nil))
		require.NoError(t, err)
		if i < 10 {
			resp.Body.Close()
		} else {
			lastResp = resp
		}
	}
	defer lastResp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, lastResp.StatusCode)
	assert.NotEmpty(t, lastResp.Header.Get("Retry-After"))

	body := parseBody(t, lastResp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])
}

// ─── Admin scope contract ───────────────────────────────────────────────────

func TestAdminEndpoints_403_WithoutAdminScope(t *testing.T) {
	ts := newTestServer(t)

	noAdminKey := "vl_noadmin_1234567890abcdef"
	noAdminHash, _ := bcrypt.GenerateFromPassword([]byte(noAdminKey), bcrypt.MinCost)
	ts.store.keys = append(ts.store.keys, &models.APIKey{
		ID:        uuid.New(),
		UserID:    testUserID,
		Name:      "no-admin-key",
		KeyHash:   string(noAdminHash),
		KeyPrefix: noAdminKey[:8],
		Scopes:    []string{"read", "write"}, // no "admin"
	})

	adminEndpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range adminEndpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req, _ := http.NewRequest(ep.method, ts.server.URL+ep.path,
				bytes.NewBuffer([]byte(`{"name":"x","scopes":["read"]}`)))
			req.Header.Set("Authorization", "Bearer "+noAdminKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			body := parseBody(t, resp)
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "FORBIDDEN", errObj["code"])
		})
	}
}

// ─── Response format contract ───────────────────────────────────────────────

func TestResponseFormat_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.unauthRequest("POST", "/api/v1/analyses"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := parseBody(t, resp)
	assert.Contains(t, body, "error")
	errObj := body["error"].(map[string]any)
	assert.NotEmpty(t, errObj["code"])
	assert.NotEmpty(t, errObj["message"])
}
