package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjy-dev/probecov/internal/check"
	"github.com/zjy-dev/probecov/internal/execdata"
)

// setupTestConfigs creates a temporary directory structure for testing.
// It returns the "configs" directory and a cleanup function.
func setupTestConfigs(t *testing.T) (string, func()) {
	configDir, err := os.MkdirTemp("", "config_test_")
	assert.NoError(t, err)

	actualConfigPath := filepath.Join(configDir, "configs")
	err = os.Mkdir(actualConfigPath, 0755)
	assert.NoError(t, err)

	// Change working directory to the parent of "configs"
	oldWd, err := os.Getwd()
	assert.NoError(t, err)
	err = os.Chdir(configDir)
	assert.NoError(t, err)

	cleanup := func() {
		os.Chdir(oldWd)
		os.RemoveAll(configDir)
	}

	return actualConfigPath, cleanup
}

const fullConfig = `
log:
  level: debug
  backend: commonlog
instrument:
  max_probes: 1000
record:
  mode: count
  format: msgpack
  file: out/run.exec
check:
  fail_on_violation: false
  rules:
    - element: CLASS
      includes: ["com.acme.*"]
      excludes: ["*Test"]
      limits:
        - counter: LINE
          value: COVEREDRATIO
          minimum: "0.80"
        - counter: BRANCH
          value: MISSEDCOUNT
          maximum: "3"
    - limits:
        - minimum: "50%"
report:
  format: markdown
  output: reports
  name: demo
`

func TestLoadConfig_Success(t *testing.T) {
	actualConfigPath, cleanup := setupTestConfigs(t)
	defer cleanup()

	err := os.WriteFile(filepath.Join(actualConfigPath, "probecov.yaml"), []byte(fullConfig), 0644)
	require.NoError(t, err)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "commonlog", cfg.Log.Backend)
	assert.Equal(t, 1000, cfg.Instrument.MaxProbes)
	assert.Equal(t, "out/run.exec", cfg.Record.File)
	assert.False(t, cfg.Check.FailOnViolation)
	assert.Equal(t, "markdown", cfg.Report.Format)
	assert.Equal(t, "reports", cfg.Report.Output)
	assert.True(t, cfg.Report.Lines, "unset keys keep their defaults")

	mode, err := cfg.RecordMode()
	require.NoError(t, err)
	assert.Equal(t, execdata.ModeCount, mode)
	format, err := cfg.RecordFormat()
	require.NoError(t, err)
	assert.Equal(t, execdata.FormatMsgpack, format)

	require.Len(t, cfg.Check.Rules, 2)
	assert.Equal(t, check.Rule{
		Element:  "CLASS",
		Includes: []string{"com.acme.*"},
		Excludes: []string{"*Test"},
		Limits: []check.Limit{
			{Counter: "LINE", Value: "COVEREDRATIO", Minimum: "0.80"},
			{Counter: "BRANCH", Value: "MISSEDCOUNT", Maximum: "3"},
		},
	}, cfg.Check.Rules[0])
	assert.Equal(t, []check.Limit{{Minimum: "50%"}}, cfg.Check.Rules[1].Limits)
}

func TestLoadConfig_Defaults(t *testing.T) {
	_, cleanup := setupTestConfigs(t)
	defer cleanup()

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("report:\n  format: json\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Report.Format)
	assert.Equal(t, "console", cfg.Log.Backend)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	_, cleanup := setupTestConfigs(t)
	defer cleanup()

	t.Setenv("PROBECOV_LOG_LEVEL", "warn")
	t.Setenv("PROBECOV_INSTRUMENT_MAX_PROBES", "42")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 42, cfg.Instrument.MaxProbes)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"log level", "log:\n  level: loud\n", "log.level"},
		{"log backend", "log:\n  backend: syslog\n", "log.backend"},
		{"max probes", "instrument:\n  max_probes: 70000\n", "instrument.max_probes"},
		{"record mode", "record:\n  mode: histogram\n", "record.mode"},
		{"record format", "record:\n  format: protobuf\n", "record.format"},
		{"report format", "report:\n  format: html\n", "report.format"},
		{"rule", "check:\n  rules:\n    - element: FILE\n", "check.rules"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "probecov.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("invalid rule wraps the checker error", func(t *testing.T) {
		cfg := Default()
		cfg.Check.Rules = []check.Rule{{Limits: []check.Limit{{Minimum: "x"}}}}
		assert.ErrorIs(t, cfg.Validate(), check.ErrInvalidRule)
	})
}

func TestLoad_Success(t *testing.T) {
	actualConfigPath, cleanup := setupTestConfigs(t)
	defer cleanup()

	err := os.WriteFile(filepath.Join(actualConfigPath, "rules.yaml"), []byte(fullConfig), 0644)
	assert.NoError(t, err)

	var loaded Config
	err = Load("rules", &loaded)
	assert.NoError(t, err)
	assert.Equal(t, "debug", loaded.Log.Level)
	assert.Len(t, loaded.Check.Rules, 2)
}

func TestLoad_FileNotExists(t *testing.T) {
	_, cleanup := setupTestConfigs(t)
	defer cleanup()

	var cfg Config
	err := Load("non_existent_config", &cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_EmptyFile(t *testing.T) {
	actualConfigPath, cleanup := setupTestConfigs(t)
	defer cleanup()

	emptyConfigFile := filepath.Join(actualConfigPath, "empty.yaml")
	err := os.WriteFile(emptyConfigFile, []byte(""), 0644)
	assert.NoError(t, err)

	var cfg Config
	err = Load("empty", &cfg)
	assert.NoError(t, err) // Viper doesn't error on empty files, just unmarshals nothing
	assert.Empty(t, cfg.Log.Level)
	assert.Empty(t, cfg.Check.Rules)
}

func TestLoad_MalformedYAML(t *testing.T) {
	actualConfigPath, cleanup := setupTestConfigs(t)
	defer cleanup()

	malformedContent := "log: test\n  level: oops" // Bad indentation
	malformedFile := filepath.Join(actualConfigPath, "malformed.yaml")
	err := os.WriteFile(malformedFile, []byte(malformedContent), 0644)
	assert.NoError(t, err)

	var cfg Config
	err = Load("malformed", &cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
