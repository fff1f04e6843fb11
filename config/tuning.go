package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"confluence-engine/internal/circuit"
	"confluence-engine/internal/confluence"
	"confluence-engine/internal/engine"
	"confluence-engine/internal/risk"
)

// Tuning is the single tuning object for analysis and gating. It is built
// once at startup and handed to constructors by value.
type Tuning struct {
	Analysis      engine.Settings          `json:"analysis" yaml:"analysis"`
	Risk          risk.Config              `json:"risk" yaml:"risk"`
	Filter        circuit.Config           `json:"filter" yaml:"filter"`
	DomainWeights confluence.DomainWeights `json:"domain_weights" yaml:"domain_weights"`
	Online        confluence.OnlineConfig  `json:"online_weights" yaml:"online_weights"`
}

// DefaultTuning returns the documented default tables
func DefaultTuning() Tuning {
	return Tuning{
		Analysis:      engine.DefaultSettings(),
		Risk:          risk.DefaultConfig(),
		Filter:        circuit.DefaultConfig(),
		DomainWeights: confluence.DefaultDomainWeights(),
		Online:        confluence.DefaultOnlineConfig(),
	}
}

// Validate checks every table
func (t Tuning) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: tuning: %v", ErrInvalidConfig, err)
	}
	if sum := t.DomainWeights.Sum(); sum <= 0 {
		return fmt.Errorf("%w: tuning: domain weights sum to %v", ErrInvalidConfig, sum)
	}
	return nil
}

// LoadTuning overlays the YAML file at path on DefaultTuning. Keys missing
// from the file keep their defaults. An empty path returns the defaults.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("error reading tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("error parsing tuning file: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}
