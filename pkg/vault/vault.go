package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	api "github.com/hashicorp/vault/api"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrPermissionDenied means the token is not allowed to read or
	// write the requested path.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a static secret does not exist.
	ErrNotFound = errors.New("secret not found")
)

type TLSConfig struct {
	CACert string
	CAPath string
}

type Config struct {
	Addr string
	TLS  *TLSConfig
}

// KubernetesAuthConfig describes a kubernetes service account login:
// the JWT at TokenFile is exchanged for a Vault token at
// auth/<LoginPath> under the given role.
type KubernetesAuthConfig struct {
	TokenFile string
	LoginPath string
	Role      string
}

func newClient(cfg *Config) (*api.Client, error) {
	apiConfig := api.DefaultConfig()
	if cfg.Addr != "" {
		apiConfig.Address = cfg.Addr
	}
	if cfg.TLS != nil && (cfg.TLS.CACert != "" || cfg.TLS.CAPath != "") {
		if err := apiConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.TLS.CACert, CAPath: cfg.TLS.CAPath}); err != nil {
			return nil, fmt.Errorf("error configuring TLS: %w", err)
		}
	}
	return api.NewClient(apiConfig)
}

func secretFields(secret *api.Secret) log.Fields {
	fields := log.Fields{
		"requestID":     secret.RequestID,
		"leaseID":       secret.LeaseID,
		"renewable":     secret.Renewable,
		"leaseDuration": secret.LeaseDuration,
	}

	if secret.Auth != nil {
		fields["auth.policies"] = secret.Auth.Policies
		fields["auth.leaseDuration"] = secret.Auth.LeaseDuration
		fields["auth.renewable"] = secret.Auth.Renewable
		fields["warnings"] = secret.Warnings
	}

	return fields
}

func defaultRetryStrategy(max time.Duration) backoff.BackOff {
	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = time.Millisecond * 500
	strategy.MaxElapsedTime = max
	return strategy
}

// Connect creates an authenticated client and waits for the backend to
// answer a token lookup, retrying with exponential backoff for at most
// the given duration. A 403 is permanent: retrying a bad token gets
// nowhere.
func Connect(ctx context.Context, factory ClientFactory, timeout time.Duration) (*api.Client, error) {
	client, err := factory.Create()
	if err != nil {
		return nil, err
	}

	op := func() error {
		if _, err := client.Auth().Token().LookupSelfWithContext(ctx); err != nil {
			log.Warnf("vault connection attempt failed: %s", err)
			if errors.Is(checkDenied(err), ErrPermissionDenied) {
				return backoff.Permanent(ErrPermissionDenied)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(defaultRetryStrategy(timeout), ctx)); err != nil {
		return nil, err
	}

	log.Infof("vault client authenticated successfully")
	return client, nil
}

func checkDenied(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "Code: 403") {
		return ErrPermissionDenied
	}
	return err
}
