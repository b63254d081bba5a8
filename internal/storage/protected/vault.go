package protected

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/vault-client-go"

	"oauthsrv/internal/config"
)

// Vault is a client instance to Hashicorp Vault secure storage for storing secrets
type Vault struct {
	Client *vault.Client
	conf   config.VaultConfig
}

// NewVaultClient creates new instance of Vault client
func NewVaultClient(conf config.VaultConfig) (*Vault, error) {
	client, err := vault.New(
		vault.WithAddress(conf.Address),
		vault.WithRequestTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating new vault client instance: %w", err)
	}
	if err = client.SetToken(conf.Token); err != nil {
		return nil, fmt.Errorf("error while setting token: %w", err)
	}
	return &Vault{Client: client, conf: conf}, nil
}

// SigningKey reads the token signing secret from the KV v2 engine
func (v *Vault) SigningKey(ctx context.Context) ([]byte, error) {
	resp, err := v.Client.Secrets.KvV2Read(ctx, v.conf.SecretPath, vault.WithMountPath(v.conf.MountPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	if resp == nil || resp.Data.Data == nil {
		return nil, fmt.Errorf("empty response from vault")
	}

	raw, ok := resp.Data.Data[v.conf.KeyField]
	if !ok {
		return nil, fmt.Errorf("%s field missing", v.conf.KeyField)
	}
	key, ok := raw.(string)
	if !ok || key == "" {
		return nil, fmt.Errorf("invalid %s format", v.conf.KeyField)
	}
	return []byte(key), nil
}
