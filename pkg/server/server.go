package server

import (
	"context"
	"net/http"

	"github.com/marwenkh02/secrets-management-app/pkg/config"
	"github.com/marwenkh02/secrets-management-app/pkg/lease"
	"github.com/marwenkh02/secrets-management-app/pkg/metrics"
	"github.com/marwenkh02/secrets-management-app/pkg/vault"
)

// Version reported by the index endpoint.
const Version = "2.0.0"

// CredentialResolver serves leased database credentials, refreshing
// through the backend when the cached lease has expired.
type CredentialResolver interface {
	Resolve(ctx context.Context, role string) (*lease.Lease, bool, error)
}

// SecretStore is the static key/value secret backend.
type SecretStore interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (*vault.StaticSecret, error)
	Write(ctx context.Context, name string, data map[string]interface{}) (*vault.StaticSecret, error)
	Destroy(ctx context.Context, name string) error
}

// BackendStatus answers the health and debug probes.
type BackendStatus interface {
	Authenticated(ctx context.Context) bool
	Mounts(ctx context.Context) ([]string, error)
	DatabaseMounted(ctx context.Context) (bool, error)
	DatabaseRoles(ctx context.Context) ([]string, error)
}

// DatabaseChecker verifies credentials against the database.
type DatabaseChecker interface {
	Check(ctx context.Context, username, password string) error
	CheckStatic(ctx context.Context) error
}

type Server struct {
	cfg      *config.Config
	resolver CredentialResolver
	static   SecretStore
	status   BackendStatus
	db       DatabaseChecker
	metrics  *metrics.Metrics
	clock    lease.Clock
	mux      *http.ServeMux
}

func New(cfg *config.Config, resolver CredentialResolver, static SecretStore, status BackendStatus, db DatabaseChecker, m *metrics.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		resolver: resolver,
		static:   static,
		status:   status,
		db:       db,
		metrics:  m,
		clock:    lease.SystemClock,
	}
}

// Handler builds the route table wrapped in the logging and CORS
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /debug/vault", s.handleDebug)

	mux.HandleFunc("GET /secrets/all", s.handleAllSecrets)
	mux.HandleFunc("GET /secrets/static", s.handleStaticSecrets)
	mux.HandleFunc("GET /secrets/dynamic-all", s.handleDynamicSecrets)

	mux.HandleFunc("POST /secrets/static/{type}", s.handleCreateSecret)
	mux.HandleFunc("DELETE /secrets/static/{type}", s.handleDeleteSecret)
	mux.HandleFunc("POST /secrets/static/{type}/{key}", s.handleCreateKey)
	mux.HandleFunc("PUT /secrets/static/{type}/{key}", s.handleUpdateKey)
	mux.HandleFunc("DELETE /secrets/static/{type}/{key}", s.handleDeleteKey)

	mux.Handle("GET /metrics", s.metrics.Handler())

	s.mux = mux
	return s.logging(s.cors(mux))
}
