package server

import (
	"net/http"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Secrets Management API with Dynamic Rotation",
		"version": Version,
		"endpoints": map[string]string{
			"health":          "/health",
			"all_secrets":     "/secrets/all",
			"static_secrets":  "/secrets/static",
			"dynamic_secrets": "/secrets/dynamic-all",
			"debug":           "/debug/vault",
			"metrics":         "/metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	vaultConnected := s.status.Authenticated(ctx)

	dbConnected := true
	if err := s.db.CheckStatic(ctx); err != nil {
		log.Errorf("database connection test failed: %s", err)
		dbConnected = false
	}

	status := "healthy"
	if !vaultConnected || !dbConnected {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":             status,
		"vault_connected":    vaultConnected,
		"database_connected": dbConnected,
		"timestamp":          s.clock.Now().UTC().Format(time.RFC3339),
		"services": map[string]string{
			"vault":    connState(vaultConnected),
			"database": connState(dbConnected),
			"backend":  "running",
		},
	})
}

func connState(connected bool) string {
	if connected {
		return "connected"
	}
	return "disconnected"
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := map[string]interface{}{
		"vault_connected": s.status.Authenticated(ctx),
		"timestamp":       s.clock.Now().UTC().Format(time.RFC3339),
	}

	mounts, err := s.status.Mounts(ctx)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	response["secrets_engines"] = mounts

	mounted, err := s.status.DatabaseMounted(ctx)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	response["database_mounted"] = mounted

	if mounted {
		roles, err := s.status.DatabaseRoles(ctx)
		if err != nil {
			log.Errorf("error listing database roles: %s", err)
			roles = []string{}
		}
		response["database_roles"] = roles
	}

	secrets, err := s.staticSecrets(ctx)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	sort.Strings(names)
	response["static_secrets_count"] = len(names)
	response["static_secrets_types"] = names

	writeJSON(w, http.StatusOK, response)
}
