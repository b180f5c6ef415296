package server

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/marwenkh02/secrets-management-app/pkg/vault"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("error encoding response: %s", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// errorStatus maps backend failures onto response codes: missing
// secrets are the client's problem, everything the backend refuses or
// fails to do is a gateway error.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, vault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusBadGateway
	}
}

func writeBackendError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error())
}
