package server

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/marwenkh02/secrets-management-app/pkg/config"
)

// secretEnvelope is the response shape shared by static and dynamic
// secrets.
type secretEnvelope struct {
	SecretType string                 `json:"secret_type"`
	Rotation   string                 `json:"rotation"`
	Data       map[string]interface{} `json:"data"`
	Metadata   map[string]interface{} `json:"metadata"`
}

func (s *Server) handleDynamicSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.dynamicSecrets(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
		"secrets":   secrets,
	})
}

func (s *Server) dynamicSecrets(ctx context.Context) (map[string]*secretEnvelope, error) {
	secrets := make(map[string]*secretEnvelope, len(s.cfg.Roles))
	for _, role := range s.cfg.Roles {
		envelope, err := s.dynamicSecret(ctx, role)
		if err != nil {
			return nil, err
		}
		secrets["db_"+role.Name] = envelope
	}
	return secrets, nil
}

func (s *Server) dynamicSecret(ctx context.Context, role config.Role) (*secretEnvelope, error) {
	l, cached, err := s.resolver.Resolve(ctx, role.Name)
	if err != nil {
		s.metrics.RefreshError(role.Name)
		return nil, err
	}
	if cached {
		s.metrics.CacheHit(role.Name)
	} else {
		s.metrics.CacheMiss(role.Name)
	}
	s.metrics.SetLeaseExpiry(role.Name, l.TTL(s.clock.Now()))

	data := make(map[string]interface{}, len(l.Data)+len(role.ResponseFields)+2)
	for k, v := range l.Data {
		data[k] = v
	}
	for k, v := range role.ResponseFields {
		data[k] = v
	}
	data["lease_duration"] = l.Duration
	data["renewable"] = l.Renewable

	cacheStatus := "new_credentials"
	if cached {
		cacheStatus = "cached"
	}

	metadata := map[string]interface{}{
		"generated_at": l.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at":   l.ExpiresAt.UTC().Format(time.RFC3339),
		"cache_status": cacheStatus,
	}
	metadata["connection_test"] = s.connectionTest(ctx, role, l.Data)

	return &secretEnvelope{
		SecretType: role.SecretType,
		Rotation:   role.Rotation,
		Data:       data,
		Metadata:   metadata,
	}, nil
}

func (s *Server) connectionTest(ctx context.Context, role config.Role, payload map[string]interface{}) string {
	if !role.VerifyConnection {
		return "skipped"
	}

	username, _ := payload["username"].(string)
	password, _ := payload["password"].(string)
	if err := s.db.Check(ctx, username, password); err != nil {
		log.WithField("role", role.Name).Errorf("database connection test failed: %s", err)
		return "failed"
	}
	return "successful"
}
