package secrets
import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"lingopaste/cfg"
	"lingopaste/svc/util"
)

var ErrNoSource = errors.New("no secret source configured")

type Source interface {
	GetSecret(ctx context.Context, key string) (string, error)
}

// NewSource picks Vault when VAULT_ADDR is set, then Secrets Manager when
// AWS_REGION is set.
func NewSource(ctx context.Context) (Source, error) {
	if addr := os.Getenv("VAULT_ADDR"); addr != "" {
		token := os.Getenv("VAULT_TOKEN")
		if tokenFile := os.Getenv("VAULT_TOKEN_FILE"); tokenFile != "" {
			b, err := os.ReadFile(tokenFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read VAULT_TOKEN_FILE: %w", err)
			}
			token = strings.TrimSpace(string(b))
		}
		return NewVault(ctx, addr, token, getEnvOrDefault("VAULT_SECRET_PATH", "secret/data/lingopaste"))
	}
	if region := os.Getenv("AWS_REGION"); region != "" {
		return NewAWS(ctx, region)
	}
	return nil, ErrNoSource
}

// ResolveOpenAIKey fills c.OpenAI.APIKey from src when only a secret id
// is configured. A key already present in the environment wins.
func ResolveOpenAIKey(ctx context.Context, c *cfg.Cfg, src Source) error {
	if c.OpenAI.APIKey.Value() != "" || c.OpenAI.SecretID == "" {
		return nil
	}
	if src == nil {
		return ErrNoSource
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	key, err := src.GetSecret(ctx, c.OpenAI.SecretID)
	if err != nil {
		return fmt.Errorf("load openai key: %w", err)
	}
	if key == "" {
		return fmt.Errorf("secret %s is empty", c.OpenAI.SecretID)
	}
	c.OpenAI.APIKey = cfg.NewSecret(key)
	util.Info().Str("secret_id", c.OpenAI.SecretID).Msg("openai key loaded from secret store")
	return nil
}

type Vault struct {
	client     *vault.Client
	secretPath string
}

func NewVault(ctx context.Context, addr, token, secretPath string) (*Vault, error) {
	vc := vault.DefaultConfig()
	vc.Address = addr
	vc.Timeout = 5 * time.Second
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, err
	}
	if token != "" {
		client.SetToken(token)
	}
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Sys().HealthWithContext(healthCtx); err != nil {
		return nil, fmt.Errorf("vault health check failed: %w", err)
	}
	return &Vault{client: client, secretPath: strings.TrimSuffix(secretPath, "/")}, nil
}

// GetSecret reads the "value" field of a KV v2 secret.
func (v *Vault) GetSecret(ctx context.Context, key string) (string, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, v.secretPath+"/"+key)
	if err != nil {
		return "", err
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", errors.New("vault: invalid secret format")
	}
	value, ok := data["value"].(string)
	if !ok {
		return "", errors.New("vault: value not found")
	}
	return value, nil
}

type AWS struct {
	sm *secretsmanager.Client
}

func NewAWS(ctx context.Context, region string) (*AWS, error) {
	ac, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &AWS{sm: secretsmanager.NewFromConfig(ac)}, nil
}
func (a *AWS) GetSecret(ctx context.Context, key string) (string, error) {
	result, err := a.sm.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &key,
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}
	if result.SecretString == nil {
		return "", errors.New("secret is binary, not string")
	}
	return *result.SecretString, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
