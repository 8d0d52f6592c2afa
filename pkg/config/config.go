// Package config loads and validates the engine's YAML/env
// configuration: dispatcher sizing, MHRW walk parameters, histogram
// shape, binning-analysis levels, controller thresholds, and
// observability settings.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sampleforge/mhrw/pkg/controller"
	"github.com/sampleforge/mhrw/pkg/mhrw"
)

// Sentinel validation errors, wrapped with mhrw.ErrInvalidParameters so
// callers can match on either taxonomy.
var (
	ErrInvalidWorkers  = fmt.Errorf("%w: num_workers must be >= 1", mhrw.ErrInvalidParameters)
	ErrInvalidNSweep   = fmt.Errorf("%w: n_sweep must be >= 1", mhrw.ErrInvalidParameters)
	ErrInvalidBins     = fmt.Errorf("%w: histogram num_bins must be >= 1", mhrw.ErrInvalidParameters)
	ErrInvalidRange    = fmt.Errorf("%w: histogram min must be < max", mhrw.ErrInvalidParameters)
	ErrInvalidLevels   = fmt.Errorf("%w: binning num_levels must be >= 1", mhrw.ErrInvalidParameters)
	ErrInvalidStepSize = fmt.Errorf("%w: initial_step_size must be > 0", mhrw.ErrInvalidParameters)
)

// Default configuration values.
const (
	defaultNumWorkers       = 4
	defaultBaseSeed         = 42
	defaultStatusInterval   = "2s"
	defaultNSweep           = 4
	defaultNTherm           = 2000
	defaultNRun             = 20000
	defaultInitialStepSize  = 1.0
	defaultHistMin          = -5.0
	defaultHistMax          = 5.0
	defaultHistNumBins      = 50
	defaultBinningNumLevels = 20
	defaultBinningTailLvls  = 5
	defaultBinningRelTol    = 0.05
)

// EngineConfig is the root configuration object the dispatcher, walk
// parameters, histogram, binning analysis, and controllers are built
// from. It groups the Go-native analogue of the opaque controller-
// threshold bag spec.md's data model gestures at without naming a
// concrete shape.
type EngineConfig struct {
	Dispatcher    DispatcherConfig       `mapstructure:"dispatcher"`
	Walk          MHRWParams             `mapstructure:"walk"`
	Histogram     HistogramParams        `mapstructure:"histogram"`
	Binning       BinningAnalysisParams  `mapstructure:"binning"`
	StepAdjuster  StepSizeAdjusterConfig `mapstructure:"step_adjuster"`
	BinsConverged BinsConvergedConfig    `mapstructure:"bins_converged"`
	Observability ObservabilityConfig    `mapstructure:"observability"`
}

// DispatcherConfig sizes the worker pool and seeding for pkg/dispatcher.
type DispatcherConfig struct {
	NumWorkers           int           `mapstructure:"num_workers"`
	BaseSeed             uint64        `mapstructure:"base_seed"`
	NumTasks             int           `mapstructure:"num_tasks"`
	StatusReportInterval time.Duration `mapstructure:"status_report_interval"`
}

// MHRWParams is the walk-length/step-size template the dispatcher
// clones per task (Walker-specific state is supplied by the caller
// building the generic mhrw.Params[WP]; this struct carries only the
// scalar fields EngineConfig can describe without a type parameter).
type MHRWParams struct {
	NSweep          int64   `mapstructure:"n_sweep"`
	NTherm          int64   `mapstructure:"n_therm"`
	NRun            int64   `mapstructure:"n_run"`
	InitialStepSize float64 `mapstructure:"initial_step_size"`
}

// HistogramParams mirrors pkg/histogram.Params for YAML/env loading.
type HistogramParams struct {
	Min     float64 `mapstructure:"min"`
	Max     float64 `mapstructure:"max"`
	NumBins int     `mapstructure:"num_bins"`
}

// BinningAnalysisParams mirrors pkg/binning.Params for YAML/env
// loading; NumTracked is set by the caller (it depends on how many
// quantities the collector tracks), so it is not part of this config.
type BinningAnalysisParams struct {
	NumLevels  int     `mapstructure:"num_levels"`
	TailLevels int     `mapstructure:"tail_levels"`
	RelTol     float64 `mapstructure:"rel_tol"`
}

// StepSizeAdjusterConfig overrides pkg/controller.StepSizeAdjuster's
// target acceptance-ratio band and period. Phi is loaded but not
// applied: StepSizeAdjuster always uses controller.DefaultPhi.
type StepSizeAdjusterConfig struct {
	RLo    float64 `mapstructure:"r_lo"`
	RHi    float64 `mapstructure:"r_hi"`
	Phi    float64 `mapstructure:"phi"`
	Period int64   `mapstructure:"period"`
}

// BinsConvergedConfig overrides pkg/controller.BinsConvergedController's
// convergence-class thresholds and poll period.
type BinsConvergedConfig struct {
	MaxUnknown         int   `mapstructure:"max_unknown"`
	MaxUnknownIsolated int   `mapstructure:"max_unknown_isolated"`
	MaxNotConverged    int   `mapstructure:"max_not_converged"`
	PollPeriodSweeps   int64 `mapstructure:"poll_period_sweeps"`
}

// ObservabilityConfig mirrors pkg/observability.Config for YAML/env
// loading; LoadConfig does not import pkg/observability to avoid a
// cycle (observability does not depend on config), so callers copy
// these fields into an observability.Config themselves.
type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	DebugTrace     bool   `mapstructure:"debug_trace"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	LogLevel       string `mapstructure:"log_level"`
	LogJSON        bool   `mapstructure:"log_json"`
}

// LoadConfig loads EngineConfig from an optional file plus environment
// variables (prefix MHRW_, e.g. MHRW_DISPATCHER_NUM_WORKERS), applying
// defaults for anything unset and validating the result.
func LoadConfig(configPath string) (*EngineConfig, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("mhrw")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/mhrw")
	}

	viperCfg.SetEnvPrefix("MHRW")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var cfg EngineConfig

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	if validateErr := validateConfig(&cfg); validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("dispatcher.num_workers", defaultNumWorkers)
	viperCfg.SetDefault("dispatcher.base_seed", defaultBaseSeed)
	viperCfg.SetDefault("dispatcher.num_tasks", defaultNumWorkers)
	viperCfg.SetDefault("dispatcher.status_report_interval", defaultStatusInterval)

	viperCfg.SetDefault("walk.n_sweep", defaultNSweep)
	viperCfg.SetDefault("walk.n_therm", defaultNTherm)
	viperCfg.SetDefault("walk.n_run", defaultNRun)
	viperCfg.SetDefault("walk.initial_step_size", defaultInitialStepSize)

	viperCfg.SetDefault("histogram.min", defaultHistMin)
	viperCfg.SetDefault("histogram.max", defaultHistMax)
	viperCfg.SetDefault("histogram.num_bins", defaultHistNumBins)

	viperCfg.SetDefault("binning.num_levels", defaultBinningNumLevels)
	viperCfg.SetDefault("binning.tail_levels", defaultBinningTailLvls)
	viperCfg.SetDefault("binning.rel_tol", defaultBinningRelTol)

	viperCfg.SetDefault("step_adjuster.r_lo", controller.DefaultRLo)
	viperCfg.SetDefault("step_adjuster.r_hi", controller.DefaultRHi)
	viperCfg.SetDefault("step_adjuster.phi", controller.DefaultPhi)
	viperCfg.SetDefault("step_adjuster.period", defaultNSweep)

	viperCfg.SetDefault("bins_converged.max_unknown", controller.DefaultMaxUnknown)
	viperCfg.SetDefault("bins_converged.max_unknown_isolated", controller.DefaultMaxUnknownIsolated)
	viperCfg.SetDefault("bins_converged.max_not_converged", controller.DefaultMaxNotConverged)
	viperCfg.SetDefault("bins_converged.poll_period_sweeps", controller.DefaultPollPeriodSweeps)

	viperCfg.SetDefault("observability.service_name", "mhrw")
	viperCfg.SetDefault("observability.environment", "dev")
	viperCfg.SetDefault("observability.log_level", "info")
	viperCfg.SetDefault("observability.log_json", true)
	viperCfg.SetDefault("observability.sample_ratio", 0.0)
}

// validateConfig validates the configuration.
func validateConfig(cfg *EngineConfig) error {
	if cfg.Dispatcher.NumWorkers < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, cfg.Dispatcher.NumWorkers)
	}

	if cfg.Walk.NSweep < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidNSweep, cfg.Walk.NSweep)
	}

	if cfg.Walk.InitialStepSize <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidStepSize, cfg.Walk.InitialStepSize)
	}

	if cfg.Histogram.NumBins < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidBins, cfg.Histogram.NumBins)
	}

	if !(cfg.Histogram.Min < cfg.Histogram.Max) {
		return fmt.Errorf("%w: got [%v, %v]", ErrInvalidRange, cfg.Histogram.Min, cfg.Histogram.Max)
	}

	if cfg.Binning.NumLevels < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLevels, cfg.Binning.NumLevels)
	}

	return nil
}
