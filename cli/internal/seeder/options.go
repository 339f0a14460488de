package seeder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var ErrInvalidOptions = errors.New("invalid seeder options")

// Options controls what Generate produces.
type Options struct {
	Entities          int           `mapstructure:"entities" yaml:"entities"`
	EntitiesPerCase   int           `mapstructure:"entities_per_case" yaml:"entities_per_case"`
	ReportsPerEntity  int           `mapstructure:"reports_per_entity" yaml:"reports_per_entity"`
	EvidencePerEntity int           `mapstructure:"evidence_per_entity" yaml:"evidence_per_entity"`
	EscalationRate    float64       `mapstructure:"escalation_rate" yaml:"escalation_rate"`
	TimeSpread        time.Duration `mapstructure:"time_spread" yaml:"time_spread"`
	CasePrefix        string        `mapstructure:"case_prefix" yaml:"case_prefix"`
	BatchSize         int           `mapstructure:"batch_size" yaml:"batch_size"`
	Seed              int64         `mapstructure:"seed" yaml:"seed"`

	// Now anchors the generated time range; zero means the current time.
	Now time.Time `mapstructure:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		Entities:          12,
		EntitiesPerCase:   4,
		ReportsPerEntity:  3,
		EvidencePerEntity: 2,
		EscalationRate:    0.25,
		TimeSpread:        72 * time.Hour,
		CasePrefix:        "CASE",
		BatchSize:         100,
	}
}

func (o Options) Validate() error {
	var errs []error
	if o.Entities < 1 {
		errs = append(errs, errors.New("entities must be at least 1"))
	}
	if o.ReportsPerEntity < 0 || o.EvidencePerEntity < 0 {
		errs = append(errs, errors.New("per-entity counts must not be negative"))
	}
	if o.EscalationRate < 0 || o.EscalationRate > 1 {
		errs = append(errs, errors.New("escalation_rate must be within [0,1]"))
	}
	if o.TimeSpread <= 0 {
		errs = append(errs, errors.New("time_spread must be positive"))
	}
	if o.CasePrefix == "" {
		errs = append(errs, errors.New("case_prefix is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}
	return nil
}

// LoadOptions layers defaults, an optional YAML file and SEED_* environment
// variables.
func LoadOptions(path string) (Options, error) {
	v := viper.New()
	defaults := DefaultOptions()
	v.SetDefault("entities", defaults.Entities)
	v.SetDefault("entities_per_case", defaults.EntitiesPerCase)
	v.SetDefault("reports_per_entity", defaults.ReportsPerEntity)
	v.SetDefault("evidence_per_entity", defaults.EvidencePerEntity)
	v.SetDefault("escalation_rate", defaults.EscalationRate)
	v.SetDefault("time_spread", defaults.TimeSpread)
	v.SetDefault("case_prefix", defaults.CasePrefix)
	v.SetDefault("batch_size", defaults.BatchSize)
	v.SetDefault("seed", defaults.Seed)

	v.SetEnvPrefix("SEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("read seeder config: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("decode seeder config: %w", err)
	}
	return opts, nil
}
