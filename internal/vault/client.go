package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"confluence-engine/config"
)

var (
	ErrDisabled       = errors.New("vault is disabled")
	ErrSecretNotFound = errors.New("secret not found")
)

// secretReader is the part of api.Logical the client reads through
type secretReader interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
}

// Client reads KV v2 secrets and caches them for the process lifetime
type Client struct {
	client *api.Client
	reader secretReader
	config config.VaultConfig
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]map[string]interface{}
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig, logger zerolog.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	c := newClient(client.Logical(), cfg, logger)
	c.client = client
	return c, nil
}

func newClient(r secretReader, cfg config.VaultConfig, logger zerolog.Logger) *Client {
	return &Client{
		reader: r,
		config: cfg,
		logger: logger.With().Str("component", "vault").Logger(),
		cache:  make(map[string]map[string]interface{}),
	}
}

// GetSecret returns the data of the named secret under the configured path
func (c *Client) GetSecret(ctx context.Context, name string) (map[string]interface{}, error) {
	c.mu.RLock()
	cached, ok := c.cache[name]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	secret, err := c.reader.ReadWithContext(ctx, c.secretPath(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from vault: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format for %s", name)
	}

	c.mu.Lock()
	c.cache[name] = data
	c.mu.Unlock()
	return data, nil
}

// ResolveSecrets overwrites credentials in cfg with values stored in Vault.
// Secrets that do not exist are skipped; read failures are returned.
func (c *Client) ResolveSecrets(ctx context.Context, cfg *config.Config) error {
	resolvers := []struct {
		name  string
		apply func(map[string]interface{})
	}{
		{"database", func(d map[string]interface{}) {
			setString(&cfg.Database.User, d, "user")
			setString(&cfg.Database.Password, d, "password")
		}},
		{"redis", func(d map[string]interface{}) {
			setString(&cfg.Redis.Password, d, "password")
		}},
		{"clickhouse", func(d map[string]interface{}) {
			setString(&cfg.ClickHouse.Username, d, "username")
			setString(&cfg.ClickHouse.Password, d, "password")
		}},
		{"telegram", func(d map[string]interface{}) {
			setString(&cfg.Telegram.BotToken, d, "bot_token")
			if id, ok := getInt64(d, "chat_id"); ok {
				cfg.Telegram.ChatID = id
			}
		}},
	}

	for _, r := range resolvers {
		data, err := c.GetSecret(ctx, r.name)
		if errors.Is(err, ErrSecretNotFound) {
			c.logger.Debug().Str("secret", r.name).Msg("No secret stored, keeping configured values")
			continue
		}
		if err != nil {
			return err
		}
		r.apply(data)
		c.logger.Info().Str("secret", r.name).Msg("Credentials resolved from vault")
	}
	return nil
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]map[string]interface{})
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if c.client == nil {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// secretPath returns the KV v2 data path for a secret
func (c *Client) secretPath(name string) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)
}

func setString(dst *string, data map[string]interface{}, key string) {
	if s := getString(data, key); s != "" {
		*dst = s
	}
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getInt64(data map[string]interface{}, key string) (int64, bool) {
	val, ok := data[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}
