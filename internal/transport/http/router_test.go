package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shrinktrack/internal/audit"
	"shrinktrack/internal/auth"
	"shrinktrack/internal/catalog"
	"shrinktrack/internal/directory"
	"shrinktrack/internal/directory/models"
	"shrinktrack/internal/ledger"
	"shrinktrack/internal/rollup"
	"shrinktrack/internal/vocab"
	"shrinktrack/pkg/domain"
	"shrinktrack/pkg/platform/tx"
)

type testEnv struct {
	router        http.Handler
	authenticator *auth.Authenticator
	principals    directory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	vocabStore := vocab.NewInMemory()
	require.NoError(t, vocab.Seed(ctx, vocabStore))

	runner := tx.NewMemoryRunner()
	principalStore := directory.NewInMemory()
	catalogStore := catalog.NewInMemory()
	factStore := ledger.NewInMemory(catalogStore)
	auditStore := audit.NewInMemoryStore()
	recorder := audit.NewRecorder(auditStore, nil)

	directorySvc := directory.NewService(principalStore, vocabStore, recorder, runner)
	catalogSvc := catalog.NewService(catalogStore, vocabStore, recorder, runner)
	ledgerSvc := ledger.NewService(factStore, catalogStore, vocabStore, recorder, runner, nil)
	vocabSvc := vocab.NewService(vocabStore, recorder, runner)
	rollupSvc := rollup.NewService(factStore, catalogStore, nil, nil)
	auditSvc := audit.NewService(auditStore)

	authenticator := auth.NewAuthenticator("test-key")
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	handler := NewHandler(logger, authenticator, directorySvc, catalogSvc, ledgerSvc, vocabSvc, rollupSvc, auditSvc)

	return &testEnv{
		router:        NewRouter(handler),
		authenticator: authenticator,
		principals:    principalStore,
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

// seedPrincipal writes a principal directly to the store and returns a token
// for it.
func (e *testEnv) seedPrincipal(t *testing.T, role models.Role, storeID int64) (models.Principal, string) {
	t.Helper()
	now := time.Now().UTC()
	p, err := models.NewPrincipal(domain.NewPrincipalID(), string(role)+"@example.com", role, storeID, now)
	require.NoError(t, err)
	require.NoError(t, e.principals.Create(context.Background(), p))

	token, err := e.authenticator.IssueToken(p.ID, time.Hour)
	require.NoError(t, err)
	return *p, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/catalog/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/catalog/", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordShrinkEventEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	_, managerToken := env.seedPrincipal(t, models.RoleManager, 1)
	_, associateToken := env.seedPrincipal(t, models.RoleAssociate, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/catalog/", managerToken, map[string]any{
		"category":     "Beef",
		"cut_name":     "Ribeye",
		"product_type": "Raw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var entry struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))

	rec = env.do(t, http.MethodPost, "/api/v1/facts/", associateToken, map[string]any{
		"catalog_entry_id": entry.ID,
		"store_id":         1,
		"occurred_at":      "2025-01-01T09:30:00Z",
		"event_type":       "Spoilage",
		"weight_lbs":       "2.5",
		"unit_cost":        "3.00",
		"unit_price":       "5.99",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/v1/facts/", associateToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Facts []json.RawMessage `json:"facts"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Facts, 1)
}

func TestCreateFactInvalidWeightRejected(t *testing.T) {
	env := newTestEnv(t)
	_, managerToken := env.seedPrincipal(t, models.RoleManager, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/catalog/", managerToken, map[string]any{
		"category":     "Pork",
		"cut_name":     "Loin",
		"product_type": "Raw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var entry struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))

	rec = env.do(t, http.MethodPost, "/api/v1/facts/", managerToken, map[string]any{
		"catalog_entry_id": entry.ID,
		"store_id":         1,
		"occurred_at":      "2025-01-01T09:30:00Z",
		"event_type":       "Spoilage",
		"weight_lbs":       "-1",
		"unit_cost":        "3.00",
		"unit_price":       "5.99",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRollupRefreshForbiddenForManager(t *testing.T) {
	env := newTestEnv(t)
	_, managerToken := env.seedPrincipal(t, models.RoleManager, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/rollups/refresh", managerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuditListRestricted(t *testing.T) {
	env := newTestEnv(t)
	_, managerToken := env.seedPrincipal(t, models.RoleManager, 1)
	_, auditorToken := env.seedPrincipal(t, models.RoleAuditor, 1)

	rec := env.do(t, http.MethodGet, "/api/v1/audit", managerToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/v1/audit", auditorToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInactivePrincipalRejectedAtMiddleware(t *testing.T) {
	env := newTestEnv(t)
	p, token := env.seedPrincipal(t, models.RoleManager, 1)

	_, err := env.principals.Execute(context.Background(), p.ID,
		func(*models.Principal) error { return nil },
		func(cur *models.Principal) { cur.Active = false },
	)
	require.NoError(t, err)

	rec := env.do(t, http.MethodGet, "/api/v1/catalog/", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
