package secrets

import (
	"context"
	"fmt"
	"os"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/pkg/errors"
)

var ErrSecretNotFound = errors.New("secret not found")

// Provider resolves named secrets (cleanup token, metrics password) from a
// backend.
type Provider interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// Adapter picks a primary backend from the environment (Vault when
// VAULT_ADDR is set, else AWS Secrets Manager when AWS_REGION is set) and
// always keeps plain env vars as the fallback.
type Adapter struct {
	primary  Provider
	fallback Provider
}

func NewAdapter(ctx context.Context) (*Adapter, error) {
	var primary Provider
	if vaultAddr := os.Getenv("VAULT_ADDR"); vaultAddr != "" {
		vp, err := newVaultProvider()
		if err != nil {
			return nil, errors.Wrap(err, "init vault provider")
		}
		primary = vp
	} else if awsRegion := os.Getenv("AWS_REGION"); awsRegion != "" {
		ap, err := newAWSProvider(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "init aws provider")
		}
		primary = ap
	}
	return &Adapter{primary: primary, fallback: envProvider{}}, nil
}

func (a *Adapter) GetSecret(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if a.primary != nil {
		v, err := a.primary.GetSecret(ctx, key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return a.fallback.GetSecret(ctx, key)
}

type envProvider struct{}

func (envProvider) GetSecret(_ context.Context, key string) (string, error) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, nil
	}
	return "", errors.Wrapf(ErrSecretNotFound, "env %s", key)
}

type vaultProvider struct {
	client *vault.Client
	path   string
}

func newVaultProvider() (*vaultProvider, error) {
	client, err := vault.NewClient(vault.DefaultConfig())
	if err != nil {
		return nil, err
	}
	path := os.Getenv("VAULT_SECRET_PATH")
	if path == "" {
		path = "secret/data/cinderbin"
	}
	return &vaultProvider{client: client, path: path}, nil
}

func (v *vaultProvider) GetSecret(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.path)
	if err != nil {
		return "", errors.Wrap(err, "vault read")
	}
	if secret == nil || secret.Data == nil {
		return "", errors.Wrapf(ErrSecretNotFound, "vault path %s", v.path)
	}
	// KV v2 nests the payload under "data".
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}
	val, ok := data[key].(string)
	if !ok || val == "" {
		return "", errors.Wrapf(ErrSecretNotFound, "vault key %s", key)
	}
	return val, nil
}

type awsProvider struct {
	client *secretsmanager.Client
	prefix string
}

func newAWSProvider(ctx context.Context) (*awsProvider, error) {
	conf, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &awsProvider{
		client: secretsmanager.NewFromConfig(conf),
		prefix: os.Getenv("AWS_SECRET_PREFIX"),
	}, nil
}

func (a *awsProvider) GetSecret(ctx context.Context, key string) (string, error) {
	id := key
	if a.prefix != "" {
		id = fmt.Sprintf("%s/%s", a.prefix, key)
	}
	out, err := a.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &id,
	})
	if err != nil {
		return "", errors.Wrap(err, "secretsmanager get")
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", errors.Wrapf(ErrSecretNotFound, "secretsmanager %s", id)
	}
	return *out.SecretString, nil
}
