package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwenkh02/secrets-management-app/pkg/config"
	"github.com/marwenkh02/secrets-management-app/pkg/lease"
	"github.com/marwenkh02/secrets-management-app/pkg/metrics"
	"github.com/marwenkh02/secrets-management-app/pkg/vault"
)

type stubResolver struct {
	leases map[string]*lease.Lease
	cached bool
	err    error
}

func (r *stubResolver) Resolve(ctx context.Context, role string) (*lease.Lease, bool, error) {
	if r.err != nil {
		return nil, false, r.err
	}
	l, ok := r.leases[role]
	if !ok {
		return nil, false, &lease.ProviderError{Role: role, Err: errors.New("unknown role")}
	}
	return l, r.cached, nil
}

type stubStore struct {
	secrets  map[string]map[string]interface{}
	listErr  error
	writeErr error
}

func (s *stubStore) List(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		names = append(names, name)
	}
	return names, nil
}

func (s *stubStore) Read(ctx context.Context, name string) (*vault.StaticSecret, error) {
	data, ok := s.secrets[name]
	if !ok {
		return nil, vault.ErrNotFound
	}
	return &vault.StaticSecret{
		Data:        data,
		Version:     1,
		CreatedTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubStore) Write(ctx context.Context, name string, data map[string]interface{}) (*vault.StaticSecret, error) {
	if s.writeErr != nil {
		return nil, s.writeErr
	}
	s.secrets[name] = data
	return &vault.StaticSecret{Data: data, Version: 2}, nil
}

func (s *stubStore) Destroy(ctx context.Context, name string) error {
	if _, ok := s.secrets[name]; !ok {
		return vault.ErrNotFound
	}
	delete(s.secrets, name)
	return nil
}

type stubStatus struct {
	authenticated bool
	mounts        []string
	roles         []string
}

func (s *stubStatus) Authenticated(ctx context.Context) bool { return s.authenticated }

func (s *stubStatus) Mounts(ctx context.Context) ([]string, error) { return s.mounts, nil }
func (s *stubStatus) DatabaseMounted(ctx context.Context) (bool, error) {
	for _, m := range s.mounts {
		if strings.TrimSuffix(m, "/") == "database" {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubStatus) DatabaseRoles(ctx context.Context) ([]string, error) { return s.roles, nil }

type stubDB struct {
	err error
}

func (d *stubDB) Check(ctx context.Context, username, password string) error { return d.err }

func (d *stubDB) CheckStatic(ctx context.Context) error { return d.err }

func testServer(t *testing.T, mutate func(*fixtures)) http.Handler {
	t.Helper()

	issued := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := &fixtures{
		cfg: config.Default(),
		resolver: &stubResolver{leases: map[string]*lease.Lease{
			"readonly": lease.New("readonly", map[string]interface{}{"username": "u-ro", "password": "p1"}, issued, 3600, true),
			"admin":    lease.New("admin", map[string]interface{}{"username": "u-adm", "password": "p2"}, issued, 3600, true),
		}},
		store: &stubStore{secrets: map[string]map[string]interface{}{
			"db": {"username": "devuser", "password": "devpass"},
		}},
		status: &stubStatus{authenticated: true, mounts: []string{"secret/", "database/", "sys/"}, roles: []string{"admin", "readonly"}},
		db:     &stubDB{},
	}
	if mutate != nil {
		mutate(f)
	}

	return New(f.cfg, f.resolver, f.store, f.status, f.db, metrics.New()).Handler()
}

type fixtures struct {
	cfg      *config.Config
	resolver *stubResolver
	store    *stubStore
	status   *stubStatus
	db       *stubDB
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func TestIndex(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, Version, body["version"])

	endpoints := body["endpoints"].(map[string]interface{})
	assert.Equal(t, "/secrets/dynamic-all", endpoints["dynamic_secrets"])
}

func TestDynamicSecrets(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/secrets/dynamic-all", "")
	require.Equal(t, http.StatusOK, rec.Code)

	secrets := body["secrets"].(map[string]interface{})
	require.Contains(t, secrets, "db_readonly")
	require.Contains(t, secrets, "db_admin")

	readonly := secrets["db_readonly"].(map[string]interface{})
	assert.Equal(t, "dynamic_database_credentials", readonly["secret_type"])
	assert.Equal(t, "automatic_1h", readonly["rotation"])

	data := readonly["data"].(map[string]interface{})
	assert.Equal(t, "u-ro", data["username"])
	assert.Equal(t, "postgres", data["host"])
	assert.Equal(t, float64(3600), data["lease_duration"])
	assert.Equal(t, true, data["renewable"])

	meta := readonly["metadata"].(map[string]interface{})
	assert.Equal(t, "new_credentials", meta["cache_status"])
	assert.Equal(t, "successful", meta["connection_test"])
	assert.Equal(t, "2024-05-01T12:00:00Z", meta["generated_at"])
	assert.Equal(t, "2024-05-01T13:00:00Z", meta["expires_at"])
}

func TestDynamicSecretsCachedStatus(t *testing.T) {
	h := testServer(t, func(f *fixtures) { f.resolver.cached = true })

	_, body := do(t, h, http.MethodGet, "/secrets/dynamic-all", "")
	readonly := body["secrets"].(map[string]interface{})["db_readonly"].(map[string]interface{})
	meta := readonly["metadata"].(map[string]interface{})
	assert.Equal(t, "cached", meta["cache_status"])
}

func TestDynamicSecretsConnectionTestFailed(t *testing.T) {
	h := testServer(t, func(f *fixtures) { f.db.err = errors.New("connection refused") })

	_, body := do(t, h, http.MethodGet, "/secrets/dynamic-all", "")
	readonly := body["secrets"].(map[string]interface{})["db_readonly"].(map[string]interface{})
	meta := readonly["metadata"].(map[string]interface{})
	assert.Equal(t, "failed", meta["connection_test"])
}

func TestDynamicSecretsProviderFailure(t *testing.T) {
	h := testServer(t, func(f *fixtures) {
		f.resolver.err = &lease.ProviderError{Role: "readonly", Err: errors.New("vault is sealed")}
	})

	rec, body := do(t, h, http.MethodGet, "/secrets/dynamic-all", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "vault is sealed")
}

func TestStaticSecrets(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/secrets/static", "")
	require.Equal(t, http.StatusOK, rec.Code)

	secrets := body["secrets"].(map[string]interface{})
	db := secrets["db"].(map[string]interface{})
	assert.Equal(t, "static_db_secrets", db["secret_type"])
	assert.Equal(t, "manual", db["rotation"])

	meta := db["metadata"].(map[string]interface{})
	assert.Equal(t, float64(1), meta["version"])
	assert.Equal(t, "2024-05-01T12:00:00Z", meta["created_time"])
}

func TestStaticSecretsListFailureIsNotMasked(t *testing.T) {
	h := testServer(t, func(f *fixtures) { f.store.listErr = errors.New("permission denied") })

	rec, body := do(t, h, http.MethodGet, "/secrets/static", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, body["error"], "listing secrets")
}

func TestAllSecrets(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/secrets/all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "static_secrets")
	assert.Contains(t, body, "dynamic_secrets")
}

func TestCreateSecret(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodPost, "/secrets/static/api", `{"secrets":{"token":"abc"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "abc", data["token"])
}

func TestCreateSecretAlreadyExists(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodPost, "/secrets/static/db", `{"secrets":{"x":"y"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "already exists")
}

func TestCreateKey(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodPost, "/secrets/static/db/api_key", `{"value":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s3cret", body["data"].(map[string]interface{})["api_key"])
}

func TestCreateKeyAlreadyExists(t *testing.T) {
	h := testServer(t, nil)

	rec, _ := do(t, h, http.MethodPost, "/secrets/static/db/username", `{"value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateKeyUpserts(t *testing.T) {
	h := testServer(t, nil)

	rec, _ := do(t, h, http.MethodPut, "/secrets/static/brandnew/key", `{"value":"v"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodPut, "/secrets/static/db/username", `{"value":"other"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteKey(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodDelete, "/secrets/static/db/password", "")
	require.Equal(t, http.StatusOK, rec.Code)
	remaining := body["remaining_keys"].([]interface{})
	assert.Equal(t, []interface{}{"username"}, remaining)
}

func TestDeleteKeyNotFound(t *testing.T) {
	h := testServer(t, nil)

	rec, _ := do(t, h, http.MethodDelete, "/secrets/static/db/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSecret(t *testing.T) {
	h := testServer(t, nil)

	rec, _ := do(t, h, http.MethodDelete, "/secrets/static/db", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/secrets/static/db", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	services := body["services"].(map[string]interface{})
	assert.Equal(t, "connected", services["vault"])
	assert.Equal(t, "connected", services["database"])
	assert.Equal(t, "running", services["backend"])
}

func TestHealthDegraded(t *testing.T) {
	h := testServer(t, func(f *fixtures) { f.db.err = errors.New("connection refused") })

	rec, body := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, false, body["database_connected"])
}

func TestDebugVault(t *testing.T) {
	h := testServer(t, nil)

	rec, body := do(t, h, http.MethodGet, "/debug/vault", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["vault_connected"])
	assert.Equal(t, true, body["database_mounted"])
	assert.Equal(t, []interface{}{"admin", "readonly"}, body["database_roles"])
	assert.Equal(t, float64(1), body["static_secrets_count"])
}

func TestCORSPreflight(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/secrets/static", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	h := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := testServer(t, nil)

	// generate some traffic first
	do(t, h, http.MethodGet, "/secrets/dynamic-all", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "secrets_api_credential_cache_misses_total")
}

func TestMetricsLabelRequestsByRoutePattern(t *testing.T) {
	h := testServer(t, nil)

	do(t, h, http.MethodPut, "/secrets/static/db/password", `{"value": "s3cret"}`)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, `path="PUT /secrets/static/{type}/{key}"`)
	assert.Contains(t, body, `path="unmatched"`)
	assert.NotContains(t, body, "password")
}
