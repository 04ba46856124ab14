package config

import "time"

// Config is the complete mpispawner configuration.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	State     StateConfig      `yaml:"state"`
	Cluster   ClusterConfig    `yaml:"cluster"`
	Spawn     SpawnConfig      `yaml:"spawn"`
	Subworlds []SubworldConfig `yaml:"subworlds"`
	Jobs      []JobConfig      `yaml:"jobs,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines launcher-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// RunTimeout bounds a whole run; zero means no limit.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// StateConfig defines where the job database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ClusterConfig describes the fixed process group.
type ClusterConfig struct {
	Size       int `yaml:"size"`
	MasterRank int `yaml:"master_rank"`
}

// SpawnConfig tunes the spawn protocol.
type SpawnConfig struct {
	ArgsSize       int  `yaml:"args_size"`
	Trace          bool `yaml:"trace"`
	AbortWhenAbort bool `yaml:"abort_when_abort"`

	// ExecTimeout bounds each external command a job runs; zero means no
	// limit.
	ExecTimeout time.Duration `yaml:"exec_timeout"`
}

// SubworldConfig declares Groups process groups of GroupSize ranks each.
type SubworldConfig struct {
	Name      string `yaml:"name"`
	GroupSize int    `yaml:"group_size"`
	Groups    int    `yaml:"groups"`
}

// JobConfig is a job queued at the start of a run.
type JobConfig struct {
	Subworld string `yaml:"subworld"`
	NProcs   int    `yaml:"nprocs"`
	Args     string `yaml:"args"`
	Trace    bool   `yaml:"trace"`
}

// Defaults returns the configuration used for every unset field.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "mpispawner",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			Path: "./data/jobs.db",
		},
		Spawn: SpawnConfig{
			ArgsSize: 8 * 1024,
		},
	}
}
