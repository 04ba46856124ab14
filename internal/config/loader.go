package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// maxArgsSize mirrors the protocol's hard cap on WORK arguments.
const maxArgsSize = 8 * 1024

// Load reads, verifies and validates the configuration at configPath. A
// directory is taken to hold config.yaml.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	if err := verifyChecksum(absPath); err != nil {
		return nil, err
	}
	return loadFile(absPath)
}

// LoadUnverified is Load without the checksum check. Only config lock
// should need it.
func LoadUnverified(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	return loadFile(absPath)
}

// ResolvePath returns the absolute path of the config file configPath
// names.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}
	return absPath, nil
}

func loadFile(absPath string) (*Config, error) {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	return cfg, nil
}

// Parse decodes YAML, expands ${VAR} references, applies defaults and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolateEnv(string(data)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Spawn.ArgsSize == 0 {
		cfg.Spawn.ArgsSize = defaults.Spawn.ArgsSize
	}
	for i := range cfg.Subworlds {
		if cfg.Subworlds[i].Groups == 0 {
			cfg.Subworlds[i].Groups = 1
		}
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Validate checks c the way Load does, for configs changed after loading.
func (c *Config) Validate() error {
	return validate(c)
}

func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}
	if cfg.Service.RunTimeout < 0 {
		return fmt.Errorf("service.run_timeout must not be negative")
	}

	if cfg.Cluster.Size < 2 {
		return fmt.Errorf("cluster.size must be at least 2 (got %d)", cfg.Cluster.Size)
	}
	if cfg.Cluster.MasterRank < 0 || cfg.Cluster.MasterRank >= cfg.Cluster.Size {
		return fmt.Errorf("cluster.master_rank %d is outside [0,%d)", cfg.Cluster.MasterRank, cfg.Cluster.Size)
	}

	if cfg.Spawn.ExecTimeout < 0 {
		return fmt.Errorf("spawn.exec_timeout must not be negative")
	}
	if cfg.Spawn.ArgsSize <= 0 || cfg.Spawn.ArgsSize > maxArgsSize {
		return fmt.Errorf("spawn.args_size must be in (0,%d] (got %d)", maxArgsSize, cfg.Spawn.ArgsSize)
	}

	names := make(map[string]SubworldConfig, len(cfg.Subworlds))
	for i, sw := range cfg.Subworlds {
		if sw.Name == "" {
			return fmt.Errorf("subworlds[%d].name is required", i)
		}
		if _, dup := names[sw.Name]; dup {
			return fmt.Errorf("subworlds[%d]: duplicate name %q", i, sw.Name)
		}
		if sw.GroupSize <= 0 {
			return fmt.Errorf("subworld %q: group_size must be positive", sw.Name)
		}
		if sw.Groups < 0 {
			return fmt.Errorf("subworld %q: groups must be positive", sw.Name)
		}
		names[sw.Name] = sw
	}
	if _, err := cfg.Layout(); err != nil {
		return err
	}

	for i, job := range cfg.Jobs {
		sw, ok := names[job.Subworld]
		if !ok {
			return fmt.Errorf("jobs[%d]: unknown subworld %q", i, job.Subworld)
		}
		if job.NProcs <= 0 || job.NProcs > sw.GroupSize {
			return fmt.Errorf("jobs[%d]: nprocs must be in [1,%d] for subworld %q (got %d)", i, sw.GroupSize, sw.Name, job.NProcs)
		}
		if len(job.Args) > cfg.Spawn.ArgsSize {
			return fmt.Errorf("jobs[%d]: args of %d bytes exceed spawn.args_size %d", i, len(job.Args), cfg.Spawn.ArgsSize)
		}
		if m := envVarPattern.FindStringSubmatch(job.Args); m != nil {
			return fmt.Errorf("jobs[%d]: environment variable ${%s} is not set", i, m[1])
		}
	}
	return nil
}
