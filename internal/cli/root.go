package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/jobsift/internal/batch"
	"github.com/ppiankov/jobsift/internal/checkpoint"
	"github.com/ppiankov/jobsift/internal/logging"
	"github.com/ppiankov/jobsift/internal/model"
	"github.com/ppiankov/jobsift/internal/taxonomy"
	"github.com/ppiankov/jobsift/internal/worker"
)

// Version is the release version, overridden at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "jobsift",
	Short: "Jobsift - job posting title extraction and category classification",
	Long: `Jobsift extracts a clean job title and a list of related roles from
unstructured job-posting text, then classifies each posting into a fixed
category taxonomy with an exact / general / other precision tier.

Large CSV and XLSX datasets are processed as resumable batch jobs:
progress is checkpointed, jobs can be paused with Ctrl+C and resumed
later, and finished jobs can be reprocessed with a new taxonomy.

Classification is rule-based, offline and deterministic.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Jobsift and the built-in taxonomy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tax, err := taxonomy.Default()
		if err != nil {
			return err
		}
		fmt.Printf("jobsift %s (taxonomy %s)\n", Version, tax.Version())
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.jobsift/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("taxonomy", "", "taxonomy YAML file (default: built-in)")
	rootCmd.PersistentFlags().String("checkpoint-backend", "", "checkpoint backend: file, sqlite or memory")
	rootCmd.PersistentFlags().String("checkpoint-dir", "", "directory for file checkpoints")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("taxonomy.path", rootCmd.PersistentFlags().Lookup("taxonomy"))
	_ = viper.BindPFlag("checkpoint.backend", rootCmd.PersistentFlags().Lookup("checkpoint-backend"))
	_ = viper.BindPFlag("checkpoint.dir", rootCmd.PersistentFlags().Lookup("checkpoint-dir"))

	setDefaults(model.DefaultConfig())

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// setDefaults registers every config key so env vars can override it
func setDefaults(cfg *model.Config) {
	viper.SetDefault("taxonomy.path", cfg.Taxonomy.Path)
	viper.SetDefault("batch.batch_size", cfg.Batch.BatchSize)
	viper.SetDefault("batch.checkpoint_every", cfg.Batch.CheckpointEvery)
	viper.SetDefault("batch.max_rows_per_second", cfg.Batch.MaxRowsPerSecond)
	viper.SetDefault("batch.parallel_jobs", cfg.Batch.ParallelJobs)
	viper.SetDefault("checkpoint.backend", cfg.Checkpoint.Backend)
	viper.SetDefault("checkpoint.dir", cfg.Checkpoint.Dir)
	viper.SetDefault("checkpoint.sqlite_path", cfg.Checkpoint.SQLitePath)
	viper.SetDefault("dataset.text_column", cfg.Dataset.TextColumn)
	viper.SetDefault("dataset.job_id_column", cfg.Dataset.JobIDColumn)
	viper.SetDefault("output.dir", cfg.Output.Dir)
	viper.SetDefault("output.format", cfg.Output.Format)
	viper.SetDefault("log.mode", cfg.Log.Mode)
	viper.SetDefault("log.level", cfg.Log.Level)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".jobsift"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match JOBSIFT_* (batch.batch_size -> JOBSIFT_BATCH_BATCH_SIZE)
	viper.SetEnvPrefix("JOBSIFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig resolves flags, env, config file and defaults into one Config
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// app bundles what most commands need
type app struct {
	cfg    *model.Config
	logger *logging.Logger
	store  checkpoint.Store
	runner *batch.Runner
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	tax, err := taxonomy.Load(cfg.Taxonomy.Path)
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.Open(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, err
	}

	opts := []batch.Option{
		batch.WithLogger(logger),
		batch.WithCheckpointEvery(cfg.Batch.CheckpointEvery),
	}
	if cfg.Batch.MaxRowsPerSecond > 0 {
		opts = append(opts, batch.WithLimiter(worker.NewLimiter(cfg.Batch.MaxRowsPerSecond, 1)))
	}

	logger.Debug("runner ready", "taxonomy", tax.Version(), "checkpoint_backend", cfg.Checkpoint.Backend)
	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		runner: batch.NewRunner(tax, store, opts...),
	}, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	a.logger.Sync()
}
