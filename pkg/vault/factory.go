package vault

import (
	"fmt"
	"os"

	api "github.com/hashicorp/vault/api"
	log "github.com/sirupsen/logrus"
)

// ClientFactory creates an authenticated Vault client.
type ClientFactory interface {
	Create() (*api.Client, error)
}

// TokenClientFactory authenticates with a pre-issued token, the way the
// service is deployed alongside a dev-mode Vault.
type TokenClientFactory struct {
	cfg   *Config
	token string
}

// KubernetesClientFactory exchanges a kubernetes service account token
// for a Vault token.
type KubernetesClientFactory struct {
	cfg  *Config
	kube *KubernetesAuthConfig
}

func NewTokenClientFactory(cfg *Config, token string) ClientFactory {
	return &TokenClientFactory{cfg: cfg, token: token}
}

func NewKubernetesClientFactory(cfg *Config, kube *KubernetesAuthConfig) ClientFactory {
	return &KubernetesClientFactory{cfg: cfg, kube: kube}
}

func (f *TokenClientFactory) Create() (*api.Client, error) {
	client, err := newClient(f.cfg)
	if err != nil {
		return nil, err
	}
	client.SetToken(f.token)
	return client, nil
}

func (f *KubernetesClientFactory) Create() (*api.Client, error) {
	client, err := newClient(f.cfg)
	if err != nil {
		return nil, err
	}

	jwt, err := os.ReadFile(f.kube.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("error reading service account token: %w", err)
	}

	secret, err := client.Logical().Write(fmt.Sprintf("auth/%s", f.kube.LoginPath), map[string]interface{}{
		"jwt":  string(jwt),
		"role": f.kube.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("error logging in to vault: %w", checkDenied(err))
	}
	if secret == nil || secret.Auth == nil {
		return nil, fmt.Errorf("login at auth/%s returned no auth data", f.kube.LoginPath)
	}

	log.WithFields(secretFields(secret)).Infof("successfully authenticated")
	client.SetToken(secret.Auth.ClientToken)

	return client, nil
}
