// Package config loads probecov.yaml through viper.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/zjy-dev/probecov/internal/check"
	"github.com/zjy-dev/probecov/internal/execdata"
	"github.com/zjy-dev/probecov/internal/flow"
	"github.com/zjy-dev/probecov/internal/logger"
	"github.com/zjy-dev/probecov/internal/report"
)

// ConfigName is the base name of the configuration file.
const ConfigName = "probecov"

// EnvPrefix prefixes environment overrides, e.g. PROBECOV_LOG_LEVEL.
const EnvPrefix = "PROBECOV"

// Config is the complete configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Instrument InstrumentConfig `mapstructure:"instrument"`
	Record     RecordConfig     `mapstructure:"record"`
	Check      CheckConfig      `mapstructure:"check"`
	Report     ReportConfig     `mapstructure:"report"`
}

// LogConfig selects the level and sink of the logger.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// Backend is "console" or "commonlog".
	Backend string `mapstructure:"backend"`
	// Dir receives a timestamped log file; empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// InstrumentConfig holds the instrumenter options.
type InstrumentConfig struct {
	MaxProbes int `mapstructure:"max_probes"`
}

// RecordConfig describes how execution data is collected and stored.
type RecordConfig struct {
	Mode   string `mapstructure:"mode"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// CheckConfig holds the coverage rules. Bounds should be quoted in YAML so
// that their number of decimal places survives.
type CheckConfig struct {
	FailOnViolation bool         `mapstructure:"fail_on_violation"`
	Rules           []check.Rule `mapstructure:"rules"`
}

// ReportConfig selects the report writer.
type ReportConfig struct {
	Format string `mapstructure:"format"`
	// Output is a directory for report files; empty writes to stdout.
	Output string `mapstructure:"output"`
	Name   string `mapstructure:"name"`
	Lines  bool   `mapstructure:"lines"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Log:        LogConfig{Level: "info", Backend: "console"},
		Instrument: InstrumentConfig{MaxProbes: flow.DefaultMaxProbes},
		Record: RecordConfig{
			Mode:   execdata.ModeBoolean.String(),
			Format: execdata.FormatCBOR.String(),
			File:   execdata.DefaultFileName,
		},
		Check:  CheckConfig{FailOnViolation: true},
		Report: ReportConfig{Format: "console", Name: "bundle", Lines: true},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.backend", d.Log.Backend)
	v.SetDefault("log.dir", d.Log.Dir)
	v.SetDefault("instrument.max_probes", d.Instrument.MaxProbes)
	v.SetDefault("record.mode", d.Record.Mode)
	v.SetDefault("record.format", d.Record.Format)
	v.SetDefault("record.file", d.Record.File)
	v.SetDefault("check.fail_on_violation", d.Check.FailOnViolation)
	v.SetDefault("report.format", d.Report.Format)
	v.SetDefault("report.output", d.Report.Output)
	v.SetDefault("report.name", d.Report.Name)
	v.SetDefault("report.lines", d.Report.Lines)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func addSearchPaths(v *viper.Viper) {
	v.AddConfigPath(".")
	v.AddConfigPath("configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")
}

// Load reads a configuration file from the "configs" directory into a struct.
// The configName parameter should be the base name of the file without the extension (e.g., "probecov").
// The result parameter should be a pointer to a struct that the configuration will be unmarshaled into.
func Load(configName string, result interface{}) error {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	addSearchPaths(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(result); err != nil {
		return fmt.Errorf("failed to unmarshal config data: %w", err)
	}

	return nil
}

// LoadConfig loads the configuration from path, or from probecov.yaml in
// the working directory or a configs directory when path is empty. A
// missing default file is not an error. Environment variables override
// file values.
func LoadConfig(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(ConfigName)
		addSearchPaths(v)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Debug("No %s.yaml found, using defaults", ConfigName)
	} else {
		logger.Debug("Loaded config from %s", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config data: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and compiles the rules.
func (c *Config) Validate() error {
	if !logger.ValidLevel(c.Log.Level) {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	switch c.Log.Backend {
	case "console", "commonlog":
	default:
		return fmt.Errorf("invalid log.backend %q", c.Log.Backend)
	}
	if c.Instrument.MaxProbes < 1 || c.Instrument.MaxProbes > flow.DefaultMaxProbes {
		return fmt.Errorf("instrument.max_probes must be in [1, %d], got %d", flow.DefaultMaxProbes, c.Instrument.MaxProbes)
	}
	if _, err := c.RecordMode(); err != nil {
		return fmt.Errorf("record.mode: %w", err)
	}
	if _, err := c.RecordFormat(); err != nil {
		return fmt.Errorf("record.format: %w", err)
	}
	if _, err := report.New(c.Report.Format, nil); err != nil {
		return fmt.Errorf("report.format: %w", err)
	}
	if err := check.NewRulesChecker().SetRules(c.Check.Rules); err != nil {
		return fmt.Errorf("check.rules: %w", err)
	}
	return nil
}

// RecordMode returns the parsed record mode.
func (c *Config) RecordMode() (execdata.Mode, error) {
	return execdata.ParseMode(c.Record.Mode)
}

// RecordFormat returns the parsed execution data format.
func (c *Config) RecordFormat() (execdata.Format, error) {
	return execdata.ParseFormat(c.Record.Format)
}
