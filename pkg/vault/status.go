package vault

import (
	"context"
	"fmt"
	"sort"
	"strings"

	api "github.com/hashicorp/vault/api"
)

// Status answers connectivity and configuration questions about the
// backend for the health and debug endpoints.
type Status struct {
	client *api.Client
	engine string
}

func NewStatus(client *api.Client, engine string) *Status {
	return &Status{client: client, engine: engine}
}

// Authenticated reports whether the client's token is currently valid.
func (s *Status) Authenticated(ctx context.Context) bool {
	_, err := s.client.Auth().Token().LookupSelfWithContext(ctx)
	return err == nil
}

// Mounts lists the mounted secrets engines.
func (s *Status) Mounts(ctx context.Context) ([]string, error) {
	mounts, err := s.client.Sys().ListMountsWithContext(ctx)
	if err != nil {
		return nil, checkDenied(err)
	}

	names := make([]string, 0, len(mounts))
	for name := range mounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DatabaseMounted reports whether the database secrets engine is
// mounted.
func (s *Status) DatabaseMounted(ctx context.Context) (bool, error) {
	mounts, err := s.Mounts(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range mounts {
		if strings.TrimSuffix(m, "/") == s.engine {
			return true, nil
		}
	}
	return false, nil
}

// DatabaseRoles lists the roles configured on the database engine.
func (s *Status) DatabaseRoles(ctx context.Context) ([]string, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, fmt.Sprintf("%s/roles", s.engine))
	if err != nil {
		return nil, checkDenied(err)
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return []string{}, nil
	}
	roles := make([]string, 0, len(raw))
	for _, k := range raw {
		if name, ok := k.(string); ok {
			roles = append(roles, name)
		}
	}
	sort.Strings(roles)
	return roles, nil
}
