package vault

import (
	"context"
	"fmt"

	api "github.com/hashicorp/vault/api"
	log "github.com/sirupsen/logrus"

	"github.com/marwenkh02/secrets-management-app/pkg/lease"
)

// DynamicProvider issues short-lived credentials from a database
// secrets engine, reading <engine>/creds/<role>. It implements
// lease.Provider; caching and refresh coordination live above it.
type DynamicProvider struct {
	client *api.Client
	engine string
}

func NewDynamicProvider(client *api.Client, engine string) *DynamicProvider {
	return &DynamicProvider{client: client, engine: engine}
}

func (p *DynamicProvider) Issue(ctx context.Context, role string) (lease.Issued, error) {
	path := fmt.Sprintf("%s/creds/%s", p.engine, role)
	log.WithField("path", path).Infof("requesting credentials")

	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return lease.Issued{}, checkDenied(err)
	}
	if secret == nil || secret.Data == nil {
		return lease.Issued{}, fmt.Errorf("no credentials at %s", path)
	}

	log.WithFields(secretFields(secret)).Infof("successfully retrieved credentials")

	return lease.Issued{
		Data:          secret.Data,
		LeaseDuration: secret.LeaseDuration,
		Renewable:     secret.Renewable,
	}, nil
}
