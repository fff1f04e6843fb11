package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || !cfg.Server.Enabled {
		t.Errorf("server = %+v", cfg.Server)
	}
	if len(cfg.Scheduler.Symbols) != 2 || cfg.Scheduler.Symbols[0] != "BTCUSDT" {
		t.Errorf("symbols = %v", cfg.Scheduler.Symbols)
	}
	if cfg.Scheduler.Interval() != time.Minute {
		t.Errorf("interval = %v, want 1m", cfg.Scheduler.Interval())
	}
	if cfg.Redis.PoolSize != 10 || cfg.Redis.Enabled {
		t.Errorf("redis = %+v", cfg.Redis)
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"server": {"port": 9090, "enabled": false},
		"scheduler": {"symbols": ["SOLUSDT"], "interval_seconds": 15},
		"logging": {"level": "debug"}
	}`)
	t.Setenv("SCHEDULER_WORKERS", "8")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Server.Enabled {
		t.Errorf("file values not applied: %+v", cfg.Server)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default host lost: %q", cfg.Server.Host)
	}
	if len(cfg.Scheduler.Symbols) != 1 || cfg.Scheduler.Interval() != 15*time.Second {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.Workers != 8 {
		t.Errorf("workers = %d, want env 8", cfg.Scheduler.Workers)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"no symbols":       `{"scheduler": {"symbols": []}}`,
		"bad port":         `{"server": {"port": 70000}}`,
		"telegram no auth": `{"telegram": {"enabled": true}}`,
		"bad log level":    `{"logging": {"level": "chatty"}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.json", body))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if _, err := Load(writeFile(t, "broken.json", `{`)); err == nil || errors.Is(err, ErrInvalidConfig) {
		t.Errorf("malformed json: err = %v, want parse error", err)
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5433, DBName: "x", SSLMode: "disable"}
	if got, want := d.DSN(), "postgres://u:p@db:5433/x?sslmode=disable"; got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestDefaultTuningValid(t *testing.T) {
	if err := DefaultTuning().Validate(); err != nil {
		t.Fatalf("default tuning invalid: %v", err)
	}
	tn, err := LoadTuning("")
	if err != nil || tn.Risk.MaxDailyTrades != 20 {
		t.Errorf("LoadTuning(\"\") = %+v, %v", tn.Risk, err)
	}
}

func TestLoadTuningOverlay(t *testing.T) {
	path := writeFile(t, "tuning.yaml", `
risk:
  max_daily_trades: 8
filter:
  cooldown: 45m
analysis:
  engine:
    primary_timeframe: 1h
`)
	tn, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning: %v", err)
	}
	if tn.Risk.MaxDailyTrades != 8 {
		t.Errorf("max daily trades = %d, want 8", tn.Risk.MaxDailyTrades)
	}
	if tn.Risk.MaxPositionsTotal != 5 {
		t.Errorf("untouched key lost its default: %d", tn.Risk.MaxPositionsTotal)
	}
	if tn.Filter.Cooldown != 45*time.Minute {
		t.Errorf("cooldown = %v", tn.Filter.Cooldown)
	}
	if tn.Analysis.Engine.PrimaryTimeframe != "1h" || tn.Analysis.Engine.MinCandles != 50 {
		t.Errorf("engine = %+v", tn.Analysis.Engine)
	}
}

func TestLoadTuningRejectsInvalid(t *testing.T) {
	path := writeFile(t, "tuning.yaml", "risk:\n  max_daily_trades: 0\n")
	if _, err := LoadTuning(path); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("err = %v, want ErrInvalidConfig", err)
	}
}
