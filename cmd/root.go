package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/tagger/internal/logger"
	"github.com/joescharf/tagger/internal/output"
	"github.com/joescharf/tagger/internal/store"
	"github.com/joescharf/tagger/internal/tagging"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui      *output.UI
	service *tagging.Service

	verbose    bool
	dryRun     bool
	jsonOutput bool

	buildVersion = "dev"
	buildCommit  = "none"
	buildDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tagger",
	Short: "Tagger - manage tags and tag-instance bindings",
	Long: `tagger stores named tags and binds them to numeric instance ids
(articles, files, anything you can number). Tags live in memory, SQLite
or PostgreSQL and are reachable from the CLI, a REST API and an MCP server.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	err := rootCmd.Execute()
	if service != nil {
		_ = service.Close()
	}
	logger.Cleanup()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.FlattenHints(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tagger/config.yaml)")
	rootCmd.PersistentFlags().String("type", "", "Tag namespace; SQL tables are named <type>_tag")
	_ = viper.BindPFlag("type", rootCmd.PersistentFlags().Lookup("type"))
}

func initConfig() {
	// A missing .env is fine.
	_ = godotenv.Load()

	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TAGGER")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	viper.SetDefault("type", "default")
	viper.SetDefault("dialect", store.DialectSQLite)
	viper.SetDefault("dsn", "")
	viper.SetDefault("table_prefix", "")
	viper.SetDefault("table_separator", "_")
	viper.SetDefault("sync", true)
	viper.SetDefault("log.json", false)
	viper.SetDefault("log.level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("api.rate_limit", 0.0)
	viper.SetDefault("api.burst", 0)
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun
	ui.JSON = jsonOutput

	level := viper.GetString("log.level")
	if verbose {
		level = "debug"
	}
	if err := logger.Initialize(viper.GetBool("log.json"), level); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The service is opened lazily so config/version commands run without a database.
}

// storeConfig reads the dialect settings from viper.
func storeConfig() store.Config {
	return store.Config{
		Dialect:        viper.GetString("dialect"),
		Type:           viper.GetString("type"),
		DSN:            viper.GetString("dsn"),
		TablePrefix:    viper.GetString("table_prefix"),
		TableSeparator: viper.GetString("table_separator"),
		Sync:           viper.GetBool("sync"),
	}
}

// getService returns the shared tagging service, opening its dialect on first call.
func getService() (*tagging.Service, error) {
	if service != nil {
		return service, nil
	}

	cfg := storeConfig()
	if cfg.Dialect == store.DialectSQLite && cfg.DSN == "" {
		dir, err := configDirFunc()
		if err != nil {
			return nil, err
		}
		cfg.DSN = filepath.Join(dir, "tagger.db")
	}

	d, err := store.Open(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open store")
	}
	ui.VerboseLog("Using %s dialect (type %s)", cfg.Dialect, cfg.Type)

	service = tagging.NewService(d)
	return service, nil
}
