package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/marwenkh02/secrets-management-app/pkg/vault"
)

type secretValue struct {
	Value string `json:"value"`
}

type secretsPayload struct {
	Secrets map[string]interface{} `json:"secrets"`
}

func (s *Server) handleStaticSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.staticSecrets(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
		"secrets":   secrets,
	})
}

func (s *Server) handleAllSecrets(w http.ResponseWriter, r *http.Request) {
	static, err := s.staticSecrets(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}
	dynamic, err := s.dynamicSecrets(r.Context())
	if err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp":       s.clock.Now().UTC().Format(time.RFC3339),
		"static_secrets":  static,
		"dynamic_secrets": dynamic,
	})
}

// staticSecrets reads every secret at the mount. A listing failure is
// an error: serving a hardcoded fallback set would hide configuration
// problems. Individual unreadable secrets are skipped so one bad policy
// does not blank the whole response.
func (s *Server) staticSecrets(ctx context.Context) (map[string]*secretEnvelope, error) {
	names, err := s.static.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing secrets: %w", err)
	}

	secrets := make(map[string]*secretEnvelope, len(names))
	for _, name := range names {
		secret, err := s.static.Read(ctx, name)
		if err != nil {
			log.WithField("secret", name).Errorf("error reading secret: %s", err)
			continue
		}
		secrets[name] = staticEnvelope(name, secret)
	}
	return secrets, nil
}

func staticEnvelope(name string, secret *vault.StaticSecret) *secretEnvelope {
	return &secretEnvelope{
		SecretType: fmt.Sprintf("static_%s_secrets", name),
		Rotation:   "manual",
		Data:       secret.Data,
		Metadata: map[string]interface{}{
			"version":      secret.Version,
			"created_time": secret.CreatedTime.UTC().Format(time.RFC3339),
		},
	}
}

func (s *Server) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("type")

	var payload secretsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(payload.Secrets) == 0 {
		writeError(w, http.StatusBadRequest, "secrets must not be empty")
		return
	}

	_, err := s.static.Read(r.Context(), name)
	if err == nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("secret type %q already exists", name))
		return
	}
	if !errors.Is(err, vault.ErrNotFound) {
		writeBackendError(w, err)
		return
	}

	if _, err := s.static.Write(r.Context(), name, payload.Secrets); err != nil {
		writeBackendError(w, err)
		return
	}

	created, err := s.static.Read(r.Context(), name)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("new secret type %q created", name),
		"data":    created.Data,
		"metadata": map[string]interface{}{
			"version":      created.Version,
			"created_time": created.CreatedTime.UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	name, key := r.PathValue("type"), r.PathValue("key")

	value, ok := decodeValue(w, r)
	if !ok {
		return
	}

	data, err := s.readOrEmpty(r.Context(), name)
	if err != nil {
		writeBackendError(w, err)
		return
	}
	if _, exists := data[key]; exists {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("key %q already exists in %s", key, name))
		return
	}

	data[key] = value
	if _, err := s.static.Write(r.Context(), name, data); err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("key %q created in %s", key, name),
		"data":    map[string]string{key: value},
	})
}

func (s *Server) handleUpdateKey(w http.ResponseWriter, r *http.Request) {
	name, key := r.PathValue("type"), r.PathValue("key")

	value, ok := decodeValue(w, r)
	if !ok {
		return
	}

	data, err := s.readOrEmpty(r.Context(), name)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	data[key] = value
	if _, err := s.static.Write(r.Context(), name, data); err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("key %q updated in %s", key, name),
		"data":    map[string]string{key: value},
	})
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	name, key := r.PathValue("type"), r.PathValue("key")

	secret, err := s.static.Read(r.Context(), name)
	if err != nil {
		writeBackendError(w, err)
		return
	}

	if _, exists := secret.Data[key]; !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("key %q not found in %s", key, name))
		return
	}

	data := make(map[string]interface{}, len(secret.Data)-1)
	for k, v := range secret.Data {
		if k != key {
			data[k] = v
		}
	}

	if _, err := s.static.Write(r.Context(), name, data); err != nil {
		writeBackendError(w, err)
		return
	}

	remaining := make([]string, 0, len(data))
	for k := range data {
		remaining = append(remaining, k)
	}
	sort.Strings(remaining)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"message":        fmt.Sprintf("key %q deleted from %s", key, name),
		"remaining_keys": remaining,
	})
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("type")

	if err := s.static.Destroy(r.Context(), name); err != nil {
		writeBackendError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("entire secret %q deleted successfully", name),
	})
}

func (s *Server) readOrEmpty(ctx context.Context, name string) (map[string]interface{}, error) {
	secret, err := s.static.Read(ctx, name)
	if errors.Is(err, vault.ErrNotFound) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, err
	}

	data := make(map[string]interface{}, len(secret.Data))
	for k, v := range secret.Data {
		data[k] = v
	}
	return data, nil
}

func decodeValue(w http.ResponseWriter, r *http.Request) (string, bool) {
	var v secretValue
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return v.Value, true
}
