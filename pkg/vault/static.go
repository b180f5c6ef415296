package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	api "github.com/hashicorp/vault/api"
)

// StaticSecret is a KV v2 secret with its version metadata.
type StaticSecret struct {
	Data        map[string]interface{}
	Version     int
	CreatedTime time.Time
}

// StaticStore reads and writes static key/value secrets at a KV v2
// mount. Static secrets carry no lease, so nothing here goes through
// the credential cache.
type StaticStore struct {
	client *api.Client
	mount  string
}

func NewStaticStore(client *api.Client, mount string) *StaticStore {
	return &StaticStore{client: client, mount: mount}
}

// List returns the names of all secrets at the mount root, sorted.
func (s *StaticStore) List(ctx context.Context) ([]string, error) {
	secret, err := s.client.Logical().ListWithContext(ctx, fmt.Sprintf("%s/metadata", s.mount))
	if err != nil {
		return nil, checkDenied(err)
	}
	if secret == nil || secret.Data == nil {
		return []string{}, nil
	}

	raw, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected list response at %s", s.mount)
	}

	names := make([]string, 0, len(raw))
	for _, k := range raw {
		name, ok := k.(string)
		if !ok {
			continue
		}
		names = append(names, strings.TrimSuffix(name, "/"))
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the current version of a secret.
func (s *StaticStore) Read(ctx context.Context, name string) (*StaticSecret, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, name)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return nil, ErrNotFound
		}
		return nil, checkDenied(err)
	}

	out := &StaticSecret{Data: secret.Data}
	if secret.VersionMetadata != nil {
		out.Version = secret.VersionMetadata.Version
		out.CreatedTime = secret.VersionMetadata.CreatedTime
	}
	return out, nil
}

// Write stores a new version of a secret and returns its metadata.
func (s *StaticStore) Write(ctx context.Context, name string, data map[string]interface{}) (*StaticSecret, error) {
	secret, err := s.client.KVv2(s.mount).Put(ctx, name, data)
	if err != nil {
		return nil, checkDenied(err)
	}

	out := &StaticSecret{Data: data}
	if secret != nil && secret.VersionMetadata != nil {
		out.Version = secret.VersionMetadata.Version
		out.CreatedTime = secret.VersionMetadata.CreatedTime
	}
	return out, nil
}

// Destroy removes a secret's metadata and every version.
func (s *StaticStore) Destroy(ctx context.Context, name string) error {
	if _, err := s.Read(ctx, name); err != nil {
		return err
	}
	if err := s.client.KVv2(s.mount).DeleteMetadata(ctx, name); err != nil {
		return checkDenied(err)
	}
	return nil
}
