package vault

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"confluence-engine/config"
)

type fakeReader struct {
	secrets map[string]map[string]interface{}
	err     error
	reads   int
}

func (f *fakeReader) ReadWithContext(_ context.Context, path string) (*api.Secret, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.secrets[path]
	if !ok {
		return nil, nil
	}
	return &api.Secret{Data: map[string]interface{}{"data": data}}, nil
}

var testVaultConfig = config.VaultConfig{Enabled: true, MountPath: "secret", SecretPath: "confluence-engine"}

func TestResolveSecrets(t *testing.T) {
	r := &fakeReader{secrets: map[string]map[string]interface{}{
		"secret/data/confluence-engine/database": {"user": "svc", "password": "s3cret"},
		"secret/data/confluence-engine/telegram": {"bot_token": "123:abc", "chat_id": json.Number("-100200")},
	}}
	c := newClient(r, testVaultConfig, zerolog.Nop())

	cfg := &config.Config{}
	cfg.Database.User = "postgres"
	cfg.Redis.Password = "from-env"

	if err := c.ResolveSecrets(context.Background(), cfg); err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if cfg.Database.User != "svc" || cfg.Database.Password != "s3cret" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Telegram.BotToken != "123:abc" || cfg.Telegram.ChatID != -100200 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
	if cfg.Redis.Password != "from-env" {
		t.Errorf("missing secret should keep configured value, got %q", cfg.Redis.Password)
	}
}

func TestGetSecretCaches(t *testing.T) {
	r := &fakeReader{secrets: map[string]map[string]interface{}{
		"secret/data/confluence-engine/redis": {"password": "p"},
	}}
	c := newClient(r, testVaultConfig, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := c.GetSecret(context.Background(), "redis"); err != nil {
			t.Fatal(err)
		}
	}
	if r.reads != 1 {
		t.Errorf("reads = %d, want 1 (cached)", r.reads)
	}
	c.ClearCache()
	_, _ = c.GetSecret(context.Background(), "redis")
	if r.reads != 2 {
		t.Errorf("reads after ClearCache = %d, want 2", r.reads)
	}

	if _, err := c.GetSecret(context.Background(), "missing"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("err = %v, want ErrSecretNotFound", err)
	}
}

func TestResolveSecretsReadError(t *testing.T) {
	c := newClient(&fakeReader{err: errors.New("permission denied")}, testVaultConfig, zerolog.Nop())
	err := c.ResolveSecrets(context.Background(), &config.Config{})
	if err == nil || !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("err = %v", err)
	}
}

func TestNewClientDisabled(t *testing.T) {
	if _, err := NewClient(config.VaultConfig{}, zerolog.Nop()); !errors.Is(err, ErrDisabled) {
		t.Errorf("err = %v, want ErrDisabled", err)
	}
}

func TestGetInt64(t *testing.T) {
	data := map[string]interface{}{
		"num":   json.Number("42"),
		"float": float64(7),
		"str":   "-9",
		"bad":   "x",
	}
	tests := []struct {
		key  string
		want int64
		ok   bool
	}{
		{"num", 42, true},
		{"float", 7, true},
		{"str", -9, true},
		{"bad", 0, false},
		{"missing", 0, false},
	}
	for _, tt := range tests {
		got, ok := getInt64(data, tt.key)
		if got != tt.want || ok != tt.ok {
			t.Errorf("getInt64(%s) = %d, %v; want %d, %v", tt.key, got, ok, tt.want, tt.ok)
		}
	}
}
