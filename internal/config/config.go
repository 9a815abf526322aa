package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"gofactor/domain/core"
	"gofactor/domain/factorial"
	"gofactor/domain/selection"
	"gofactor/internal"
	"gofactor/internal/bootstrap"
	"gofactor/internal/effects"
	"gofactor/internal/optimizer"
	"gofactor/internal/score"
	"gofactor/internal/shapfit"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Config represents the complete application configuration
type Config struct {
	Scoring    ScoringConfig    `yaml:"scoring" json:"scoring"`
	Estimation EstimationConfig `yaml:"estimation" json:"estimation"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap" json:"bootstrap"`
	Optimizer  OptimizerConfig  `yaml:"optimizer" json:"optimizer"`
	Log        LogConfig        `yaml:"log" json:"-"`
	Database   DatabaseConfig   `yaml:"database" json:"-"`
}

// ScoringConfig holds the risk-adjusted score weights
type ScoringConfig struct {
	Kappa          float64             `yaml:"kappa" json:"kappa" validate:"gte=0"`
	Rho            float64             `yaml:"rho" json:"rho" validate:"gte=0"`
	Direction      selection.Direction `yaml:"direction" json:"direction" validate:"oneof=maximize minimize"`
	NormalizeCosts bool                `yaml:"normalize_costs" json:"normalize_costs"`
	DefaultCost    float64             `yaml:"default_cost" json:"default_cost" validate:"gte=0"`
}

// EstimationConfig selects the estimation path and its options
type EstimationConfig struct {
	Path              factorial.Path     `yaml:"path" json:"path" validate:"oneof=cm sf"`
	Shrinkage         shapfit.Shrinkage  `yaml:"shrinkage" json:"shrinkage" validate:"oneof=low mid high"`
	Imputation        effects.Imputation `yaml:"imputation" json:"imputation" validate:"oneof=none marginal"`
	MinCells          int                `yaml:"min_cells" json:"min_cells" validate:"min=1"`
	AblationThreshold float64            `yaml:"ablation_threshold" json:"ablation_threshold" validate:"gte=0"`
}

// BootstrapConfig holds the resampling settings
type BootstrapConfig struct {
	Replicates      int     `yaml:"replicates" json:"replicates" validate:"min=1,max=100000"`
	Confidence      float64 `yaml:"confidence" json:"confidence" validate:"gt=0,lt=1"`
	MaxRetries      int     `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	TargetHalfWidth float64 `yaml:"target_half_width" json:"target_half_width" validate:"gte=0"`
	Seed            int64   `yaml:"seed" json:"seed"`
	Workers         int     `yaml:"workers" json:"-" validate:"min=1"`
}

// OptimizerConfig holds the search settings
type OptimizerConfig struct {
	Mode          selection.Mode `yaml:"mode" json:"mode" validate:"oneof=exhaustive greedy beam"`
	BeamWidth     int            `yaml:"beam_width" json:"beam_width" validate:"min=1"`
	Budget        float64        `yaml:"budget" json:"budget" validate:"gte=0"`
	MaxCandidates int            `yaml:"max_exhaustive_candidates" json:"max_exhaustive_candidates" validate:"min=1"`
	MaxSteps      int64          `yaml:"max_exhaustive_steps" json:"max_exhaustive_steps" validate:"min=1"`
	Timeout       time.Duration  `yaml:"exhaustive_timeout" json:"-" validate:"gte=0"`
	MaxItems      int            `yaml:"max_items" json:"max_items" validate:"gte=0"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=ERROR WARN INFO DEBUG TRACE"`
}

// DatabaseConfig holds database connection settings. An empty URL disables
// run persistence.
type DatabaseConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// Default returns the documented defaults
func Default() *Config {
	return &Config{
		Scoring: ScoringConfig{
			Kappa:          1,
			Rho:            0,
			Direction:      selection.Maximize,
			NormalizeCosts: true,
			DefaultCost:    1,
		},
		Estimation: EstimationConfig{
			Path:              factorial.PathCellMeans,
			Shrinkage:         shapfit.ShrinkageLow,
			Imputation:        effects.ImputeNone,
			MinCells:          2,
			AblationThreshold: 0.10,
		},
		Bootstrap: BootstrapConfig{
			Replicates: 200,
			Confidence: 0.95,
			MaxRetries: 3,
			Seed:       42,
			Workers:    4,
		},
		Optimizer: OptimizerConfig{
			Mode:          selection.ModeGreedy,
			BeamWidth:     5,
			Budget:        10,
			MaxCandidates: 20,
			MaxSteps:      5_000_000,
			Timeout:       30 * time.Second,
		},
		Log: LogConfig{Level: "INFO"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment overrides, then validates it
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := loadConfigFile(path, config); err != nil {
			return nil, err
		}
	}

	loadConfigFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.NewConfigurationError("config file", err.Error())
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return core.NewConfigurationError("config file", fmt.Sprintf("parse %s: %v", path, err))
	}
	return nil
}

func loadConfigFromEnv(config *Config) {
	config.Scoring.Kappa = getEnvFloatOrDefault("FACTORS_KAPPA", config.Scoring.Kappa)
	config.Scoring.Rho = getEnvFloatOrDefault("FACTORS_RHO", config.Scoring.Rho)
	config.Scoring.Direction = selection.Direction(getEnvOrDefault("FACTORS_DIRECTION", string(config.Scoring.Direction)))
	config.Scoring.NormalizeCosts = getEnvBoolOrDefault("FACTORS_NORMALIZE_COSTS", config.Scoring.NormalizeCosts)

	config.Estimation.Path = factorial.Path(getEnvOrDefault("FACTORS_PATH", string(config.Estimation.Path)))
	config.Estimation.Shrinkage = shapfit.Shrinkage(getEnvOrDefault("FACTORS_SHRINKAGE", string(config.Estimation.Shrinkage)))

	config.Bootstrap.Replicates = getEnvIntOrDefault("FACTORS_REPLICATES", config.Bootstrap.Replicates)
	config.Bootstrap.Confidence = getEnvFloatOrDefault("FACTORS_CONFIDENCE", config.Bootstrap.Confidence)
	config.Bootstrap.Seed = int64(getEnvIntOrDefault("FACTORS_SEED", int(config.Bootstrap.Seed)))
	config.Bootstrap.Workers = getEnvIntOrDefault("FACTORS_WORKERS", config.Bootstrap.Workers)

	config.Optimizer.Mode = selection.Mode(getEnvOrDefault("FACTORS_MODE", string(config.Optimizer.Mode)))
	config.Optimizer.Budget = getEnvFloatOrDefault("FACTORS_BUDGET", config.Optimizer.Budget)
	config.Optimizer.MaxItems = getEnvIntOrDefault("FACTORS_MAX_ITEMS", config.Optimizer.MaxItems)

	config.Log.Level = strings.ToUpper(getEnvOrDefault("LOG_LEVEL", config.Log.Level))
	config.Database.URL = getEnvOrDefault("DATABASE_URL", config.Database.URL)
}

// Validate applies the struct tags and the cross-field rules. The first
// failure is returned as a ConfigurationError naming the YAML field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			return core.NewConfigurationError(field, fmt.Sprintf("value %v fails %s=%s", fe.Value(), fe.Tag(), fe.Param()))
		}
		return core.NewConfigurationError("config", err.Error())
	}

	if c.Estimation.Path == factorial.PathShapFit && c.Estimation.Imputation != effects.ImputeNone {
		return core.NewConfigurationError("estimation.imputation", "imputation applies to the cm path only")
	}
	return nil
}

// Hash fingerprints the options that affect results. Logging, database
// and worker settings are excluded.
func (c *Config) Hash() core.ConfigHash {
	data, _ := json.Marshal(c)
	return core.ConfigHash(core.NewHash(data))
}

// Logger builds a logger at the configured level
func (c *Config) Logger() *internal.Logger {
	level, _ := internal.ParseLogLevel(c.Log.Level)
	return internal.NewLogger(level)
}

func (c *Config) EffectsOptions() effects.Options {
	return effects.Options{MinCells: c.Estimation.MinCells, Imputation: c.Estimation.Imputation}
}

func (c *Config) BootstrapOptions() bootstrap.Options {
	return bootstrap.Options{
		Replicates:      c.Bootstrap.Replicates,
		Confidence:      c.Bootstrap.Confidence,
		MaxRetries:      c.Bootstrap.MaxRetries,
		Seed:            c.Bootstrap.Seed,
		Workers:         c.Bootstrap.Workers,
		TargetHalfWidth: c.Bootstrap.TargetHalfWidth,
	}
}

func (c *Config) ScoreOptions() score.Options {
	return score.Options{
		Kappa:          c.Scoring.Kappa,
		Rho:            c.Scoring.Rho,
		Direction:      c.Scoring.Direction,
		NormalizeCosts: c.Scoring.NormalizeCosts,
		DefaultCost:    c.Scoring.DefaultCost,
	}
}

func (c *Config) OptimizerOptions() optimizer.Options {
	return optimizer.Options{
		Mode:          c.Optimizer.Mode,
		Budget:        c.Optimizer.Budget,
		BeamWidth:     c.Optimizer.BeamWidth,
		MaxCandidates: c.Optimizer.MaxCandidates,
		MaxSteps:      c.Optimizer.MaxSteps,
		Timeout:       c.Optimizer.Timeout,
		MaxItems:      c.Optimizer.MaxItems,
		Workers:       c.Bootstrap.Workers,
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
