package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/tagger/internal/output"
	"github.com/joescharf/tagger/internal/tagging"
)

// testEnv sets up isolated config dir, viper and output. The service opens the
// default sqlite database inside the temp config dir.
// Command output is captured in the returned buffer via ui.Out.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults()

	// Initialize output
	ui = output.New()
	ui.Out = &bytes.Buffer{}
	ui.ErrOut = &bytes.Buffer{}

	// Reset command flags shared between tests
	dryRun = false
	tagDesc, tagDescribe, tagRename = "", false, ""
	listPage, listPageSize, listAll, listCount = tagging.DefaultPage, tagging.DefaultPageSize, false, false
	bindAutoCreate = false
	suggestLimit, suggestBind = 5, ""

	service = nil
	t.Cleanup(func() {
		if service != nil {
			_ = service.Close()
			service = nil
		}
	})

	return dir
}

// stdout returns what the command under test printed.
func stdout() string {
	return ui.Out.(*bytes.Buffer).String()
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tagger configuration")
	assert.Contains(t, string(data), `dialect: "sqlite"`)
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tagger configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	t.Setenv("TAGGER_TEST_KEY", "val")
	assert.Contains(t, detectSource("test_key", "TAGGER_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "TAGGER_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "TAGGER_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestEnvVar(t *testing.T) {
	assert.Equal(t, "TAGGER_DIALECT", envVar("dialect"))
	assert.Equal(t, "TAGGER_LOG_LEVEL", envVar("log.level"))
	assert.Equal(t, "TAGGER_API_RATE_LIMIT", envVar("api.rate_limit"))
}

func TestConfigShow_Sources(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("dialect: sqlite\nlog:\n  level: debug\n"), 0644))
	t.Setenv("TAGGER_PORT", "9090")

	require.NoError(t, configShowRun())
	out := stdout()
	assert.Regexp(t, `dialect\s+\S+\s+\(file\)`, out)
	assert.Regexp(t, `log\.level\s+\S+\s+\(file\)`, out)
	assert.Contains(t, out, "(env: TAGGER_PORT)")
	assert.Regexp(t, `table_separator\s+_\s+\(default\)`, out)
}

func TestConfigShow_MasksAPIKey(t *testing.T) {
	testEnv(t)
	viper.Set("anthropic.api_key", "sk-secret")

	require.NoError(t, configShowRun())
	assert.NotContains(t, stdout(), "sk-secret")
	assert.Contains(t, stdout(), "(set)")
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	defer func() { dryRun = false }()

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}
