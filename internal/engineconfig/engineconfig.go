// Package engineconfig loads engine options (SPEC_FULL.md §6's `set`
// fields) from a TOML file, repurposing the teacher's
// github.com/BurntSushi/toml schema-file parsing for engine
// configuration instead of database schema definitions.
package engineconfig

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"sensei/internal/engineerr"
)

// Logging mirrors the "logging" set-option group.
type Logging struct {
	LogTimestamp  bool   `toml:"log_timestamp"`
	TextLogPath   string `toml:"text_log_path"`
	RecordLogPath string `toml:"record_log_path"`
	ClearLogFiles bool   `toml:"clear_log_files"`
}

// RegularizationTerm mirrors one (l1, l2, l1_at_weight_zero) triple.
type RegularizationTerm struct {
	L1             float64 `toml:"l1"`
	L2             float64 `toml:"l2"`
	L1AtWeightZero float64 `toml:"l1_at_weight_zero"`
}

// Regularization mirrors the four additive regularization variants.
type Regularization struct {
	Base       RegularizationTerm `toml:"base"`
	DivSqrtN   RegularizationTerm `toml:"div_sqrt_n"`
	MulSqrtN   RegularizationTerm `toml:"mul_sqrt_n"`
	Confidence RegularizationTerm `toml:"confidence"`
}

// SGDLearningRateSchedule mirrors the "sgd_learning_rate_schedule" group.
type SGDLearningRateSchedule struct {
	StartLearningRate float64 `toml:"start_learning_rate"`
	DecaySpeed        float64 `toml:"decay_speed"`
}

// Config is the full set of engine options loadable from a TOML file.
type Config struct {
	Logging         Logging                 `toml:"logging"`
	Regularization  Regularization          `toml:"regularization"`
	InertiaFactor   float64                 `toml:"inertia_factor"`
	StepMultiplier  float64                 `toml:"step_multiplier"`
	AllowUndo       bool                    `toml:"allow_undo"`
	Deterministic   bool                    `toml:"deterministic"`
	MaxShardSize    int                     `toml:"max_shard_size"`
	LoggedLiftFrac  float64                 `toml:"logged_lift_fraction"`
	SGDSchedule     SGDLearningRateSchedule `toml:"sgd_learning_rate_schedule"`
	StorageBackend  string                  `toml:"storage_backend"`
	WorkerCount     int                     `toml:"worker_count"`
	MetricsEnabled  bool                    `toml:"metrics_enabled"`
	RowIDFeature    string                  `toml:"row_id_feature"`
}

// Default returns the built-in defaults: no regularization, a
// single-step majorizer, undo disabled, worker_count=4 (SPEC_FULL.md
// §5's bounded-worker-pool default size), file-backed storage, metrics
// off (keeping the core's single-machine batch-CLI character per
// SPEC_FULL.md §4.17).
func Default() Config {
	return Config{
		InertiaFactor:  0,
		StepMultiplier: 1,
		MaxShardSize:   1 << 20,
		LoggedLiftFrac: 1,
		SGDSchedule:    SGDLearningRateSchedule{StartLearningRate: 0.1, DecaySpeed: 1},
		StorageBackend: "file",
		WorkerCount:    4,
	}
}

// Load reads defaults, then overlays a TOML file (if path is non-empty),
// then environment variable overrides named SMF_ENGINE_*, matching the
// layered-override precedence in SPEC_FULL.md §4.16: defaults -> file ->
// env -> explicit `set` commands (the last of which is applied later, by
// the caller, via world.SetOptions).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, engineerr.Wrap(engineerr.Configuration, "engineconfig.Load", "opening config file", err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return engineerr.Wrap(engineerr.Configuration, "engineconfig.decode", "decoding TOML", err)
	}
	return nil
}

// envOverrides names each SMF_ENGINE_* variable and how to apply it.
var envOverrides = []struct {
	name  string
	apply func(cfg *Config, value string) error
}{
	{"SMF_ENGINE_STORAGE_BACKEND", func(cfg *Config, v string) error { cfg.StorageBackend = v; return nil }},
	{"SMF_ENGINE_WORKER_COUNT", func(cfg *Config, v string) error { return setInt(&cfg.WorkerCount, v) }},
	{"SMF_ENGINE_MAX_SHARD_SIZE", func(cfg *Config, v string) error { return setInt(&cfg.MaxShardSize, v) }},
	{"SMF_ENGINE_DETERMINISTIC", func(cfg *Config, v string) error { return setBool(&cfg.Deterministic, v) }},
	{"SMF_ENGINE_ALLOW_UNDO", func(cfg *Config, v string) error { return setBool(&cfg.AllowUndo, v) }},
	{"SMF_ENGINE_METRICS_ENABLED", func(cfg *Config, v string) error { return setBool(&cfg.MetricsEnabled, v) }},
	{"SMF_ENGINE_INERTIA_FACTOR", func(cfg *Config, v string) error { return setFloat(&cfg.InertiaFactor, v) }},
	{"SMF_ENGINE_STEP_MULTIPLIER", func(cfg *Config, v string) error { return setFloat(&cfg.StepMultiplier, v) }},
	{"SMF_ENGINE_TEXT_LOG_PATH", func(cfg *Config, v string) error { cfg.Logging.TextLogPath = v; return nil }},
	{"SMF_ENGINE_RECORD_LOG_PATH", func(cfg *Config, v string) error { cfg.Logging.RecordLogPath = v; return nil }},
}

func applyEnvOverrides(cfg *Config) error {
	for _, o := range envOverrides {
		v, ok := os.LookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(cfg, v); err != nil {
			return engineerr.Wrap(engineerr.Configuration, "engineconfig.applyEnvOverrides", fmt.Sprintf("parsing %s", o.name), err)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

// Validate runs the configuration-error checks named in SPEC_FULL.md §7
// before any training command executes: missing/invalid values and
// mutually exclusive fields both set.
func (c Config) Validate() error {
	if c.InertiaFactor < 0 {
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", "inertia_factor must be >= 0")
	}
	if c.StepMultiplier < 1 {
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", "step_multiplier must be >= 1")
	}
	if c.MaxShardSize <= 0 {
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", "max_shard_size must be > 0")
	}
	if c.WorkerCount <= 0 {
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", "worker_count must be > 0")
	}
	if c.LoggedLiftFrac <= 0 || c.LoggedLiftFrac > 1 {
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", "logged_lift_fraction must be in (0, 1]")
	}
	switch strings.ToLower(c.StorageBackend) {
	case "file", "mysql":
	default:
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", fmt.Sprintf("storage_backend must be 'file' or 'mysql', got %q", c.StorageBackend))
	}
	if c.Logging.TextLogPath != "" && c.Logging.TextLogPath == c.Logging.RecordLogPath {
		return engineerr.New(engineerr.Configuration, "engineconfig.Validate", "text_log_path and record_log_path must not be the same file")
	}
	return nil
}
