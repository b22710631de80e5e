package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bank-reconciliation-service/cmd/reconciler/config"
	"bank-reconciliation-service/pkg/errors"
	"bank-reconciliation-service/pkg/logger"
)

var (
	cfgFile string
	envFile string
	verbose bool
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "Bank transaction reconciliation tool",
	Long: `Reconciler matches bank transactions against general ledger entries,
scores every decision and routes it to auto-approval, review or manual handling.

Transactions are read from CSV or OFX exports and ledger entries from a CSV
export of the accounting system. Matches are recorded in a local SQLite
database, and approved matches train the pattern store used to boost future
decisions.

Examples:
  reconciler reconcile --transactions bank.csv --ledger ledger.csv --entities-file entities.yaml
  reconciler reconcile --ofx statement.ofx --entity "Phygrid Limited" --ledger gl.csv --subsidiary "Phygrid Limited=3"
  reconciler score --type fuzzy_high --intercompany --boost 0.10
  reconciler entities detect --name "Fendops Kft"
  reconciler version`,
	Version:           getVersionString(),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Execute runs the command line and returns the process exit code
func Execute() int {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command line under ctx and returns the process exit code
func ExecuteContext(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	return NewCLIErrorHandler().HandleError(err)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (optional, YAML/JSON/TOML)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn, error")
	flags.String(config.KeyLogFormat, "text", "log format: text, json")
	flags.String(config.KeyLogFile, "", "write logs to this file instead of stderr")
	flags.String(config.KeyDatabase, "reconciler.db", "SQLite database for patterns and suggestions")
	flags.String(config.KeyEntitiesFile, "", "YAML entity registry (default: built-in group)")

	for _, key := range []string{"verbose", config.KeyLogLevel, config.KeyLogFormat, config.KeyLogFile, config.KeyDatabase, config.KeyEntitiesFile} {
		_ = viper.BindPFlag(key, flags.Lookup(key))
	}
}

// initConfig loads the dotenv file, the config file and the environment, then
// installs the global logger
func initConfig(cmd *cobra.Command, _ []string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "env-file", envFile, err).
				WithSuggestion("Fix the syntax of the dotenv file or pass --env-file=\"\"")
		}
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "config", cfgFile, err).
				WithSuggestion("Check that the config file exists and is valid YAML, JSON or TOML")
		}
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	logConfig := settings.LoggerConfig()
	if viper.GetBool("verbose") && !cmd.Flags().Changed(config.KeyLogLevel) {
		logConfig.Level = logger.DebugLevel
	}
	log, err := logger.NewLogger(logConfig)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "logging", logConfig, err)
	}
	logger.SetGlobalLogger(log)

	if viper.ConfigFileUsed() != "" {
		log.WithField("config", viper.ConfigFileUsed()).Debug("Using config file")
	}
	return nil
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
