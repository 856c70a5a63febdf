package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tagger"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage tagger configuration.

Running bare 'tagger config' is the same as 'tagger config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# tagger configuration
# See: tagger config show (for effective values and sources)

# Tag namespace. SQL tables are named <prefix><sep><type><sep>tag.
type: "{{ .Type }}"

# Storage dialect: sqlite, postgres or memory (default: sqlite)
# memory keeps nothing between runs; only use it for 'tagger serve' or
# 'tagger mcp', where one process owns the tags for its lifetime.
dialect: "{{ .Dialect }}"

# Connection string for sqlite (file path) or postgres (URL).
# sqlite defaults to ~/.config/tagger/tagger.db when empty.
dsn: "{{ .DSN }}"

# Optional table name prefix and separator (default separator: "_")
table_prefix: "{{ .TablePrefix }}"
table_separator: "{{ .TableSeparator }}"

# Create missing tables on startup (default: true)
sync: {{ .Sync }}

# Logging (stderr)
log:
  json: {{ .LogJSON }}
  level: "{{ .LogLevel }}"

# REST API (tagger serve)
port: {{ .Port }}
api:
  # Requests per second, 0 disables rate limiting
  rate_limit: {{ .RateLimit }}
  burst: {{ .Burst }}

# Tag suggestions (tagger suggest, tag new --describe)
anthropic:
  # api_key: ""
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	Type           string
	Dialect        string
	DSN            string
	TablePrefix    string
	TableSeparator string
	Sync           bool
	LogJSON        bool
	LogLevel       string
	Port           int
	RateLimit      float64
	Burst          int
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return errors.WithHint(errors.Newf("config file already exists: %s", cfgPath), "use --force to overwrite")
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		Type:           viper.GetString("type"),
		Dialect:        viper.GetString("dialect"),
		DSN:            viper.GetString("dsn"),
		TablePrefix:    viper.GetString("table_prefix"),
		TableSeparator: viper.GetString("table_separator"),
		Sync:           viper.GetBool("sync"),
		LogJSON:        viper.GetBool("log.json"),
		LogLevel:       viper.GetString("log.level"),
		Port:           viper.GetInt("port"),
		RateLimit:      viper.GetFloat64("api.rate_limit"),
		Burst:          viper.GetInt("api.burst"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return errors.Wrap(err, "parse config template")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "render config template")
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create config directory")
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return errors.Wrap(err, "write config file")
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "type", EnvVar: envVar("type")},
	{Key: "dialect", EnvVar: envVar("dialect")},
	{Key: "dsn", EnvVar: envVar("dsn")},
	{Key: "table_prefix", EnvVar: envVar("table_prefix")},
	{Key: "table_separator", EnvVar: envVar("table_separator")},
	{Key: "sync", EnvVar: envVar("sync")},
	{Key: "log.json", EnvVar: envVar("log.json")},
	{Key: "log.level", EnvVar: envVar("log.level")},
	{Key: "port", EnvVar: envVar("port")},
	{Key: "api.rate_limit", EnvVar: envVar("api.rate_limit")},
	{Key: "api.burst", EnvVar: envVar("api.burst")},
	{Key: "anthropic.api_key", EnvVar: envVar("anthropic.api_key")},
	{Key: "anthropic.model", EnvVar: envVar("anthropic.model")},
}

// envKeyReplacer maps nested keys onto env names: log.level -> TAGGER_LOG_LEVEL.
var envKeyReplacer = strings.NewReplacer(".", "_")

func envVar(key string) string {
	return "TAGGER_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Key == "anthropic.api_key" && val != "" {
			val = "(set)"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return errors.WithHint(errors.New("$EDITOR is not set"), "set it to your preferred editor, e.g. export EDITOR=vim")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return errors.WithHint(errors.Newf("config file not found: %s", cfgPath), "run 'tagger config init' first")
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
