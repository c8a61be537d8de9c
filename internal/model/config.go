package model

// Config holds all runtime settings
type Config struct {
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy" mapstructure:"taxonomy"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// TaxonomyConfig selects the category taxonomy
type TaxonomyConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // Empty uses the built-in taxonomy
}

// BatchConfig controls the batch runner
type BatchConfig struct {
	BatchSize        int     `yaml:"batch_size" mapstructure:"batch_size"`
	CheckpointEvery  int     `yaml:"checkpoint_every" mapstructure:"checkpoint_every"`       // Upper bound on rows between checkpoints
	MaxRowsPerSecond float64 `yaml:"max_rows_per_second" mapstructure:"max_rows_per_second"` // 0 = unlimited
	ParallelJobs     int     `yaml:"parallel_jobs" mapstructure:"parallel_jobs"`             // Split a range into this many jobs
}

// CheckpointConfig selects where checkpoints live
type CheckpointConfig struct {
	Backend    string `yaml:"backend" mapstructure:"backend"` // file, sqlite or memory
	Dir        string `yaml:"dir" mapstructure:"dir"`
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DatasetConfig names the dataset columns to read
type DatasetConfig struct {
	TextColumn  string `yaml:"text_column" mapstructure:"text_column"` // Empty = suggested column
	JobIDColumn string `yaml:"job_id_column" mapstructure:"job_id_column"`
}

// OutputConfig controls exported results
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	Format string `yaml:"format" mapstructure:"format"` // csv or xlsx
}

// LogConfig controls structured logging
type LogConfig struct {
	Mode  string `yaml:"mode" mapstructure:"mode"` // dev or prod
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			BatchSize:       100,
			CheckpointEvery: 1000,
			ParallelJobs:    1,
		},
		Checkpoint: CheckpointConfig{
			Backend:    "file",
			Dir:        "./jobsift-checkpoints",
			SQLitePath: "./jobsift.db",
		},
		Output: OutputConfig{
			Dir:    "./jobsift-results",
			Format: "csv",
		},
		Log: LogConfig{
			Mode:  "dev",
			Level: "info",
		},
	}
}
