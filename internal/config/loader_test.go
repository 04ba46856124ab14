package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
service:
  name: test
  run_timeout: 30s
state:
  path: ./test.db
cluster:
  size: 7
  master_rank: 0
subworlds:
  - name: small
    group_size: 2
  - name: large
    group_size: 4
`

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		env     map[string]string
		wantErr bool
		checkFn func(t *testing.T, cfg *Config)
	}{
		{
			name: "minimal valid config",
			yaml: baseYAML,
			checkFn: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test", cfg.Service.Name)
				assert.Equal(t, 30*time.Second, cfg.Service.RunTimeout)
				assert.Equal(t, "./test.db", cfg.State.Path)
				assert.Equal(t, 7, cfg.Cluster.Size)
				require.Len(t, cfg.Subworlds, 2)
				assert.Equal(t, 1, cfg.Subworlds[0].Groups, "groups default")
				assert.Equal(t, 8192, cfg.Spawn.ArgsSize, "args_size default")
				assert.Equal(t, "info", cfg.Service.LogLevel)
				assert.Equal(t, "json", cfg.Service.LogFormat)
			},
		},
		{
			name: "env var interpolation",
			yaml: baseYAML + `
jobs:
  - subworld: small
    nprocs: 2
    args: echo ${GREETING}
`,
			env: map[string]string{"GREETING": "hello"},
			checkFn: func(t *testing.T, cfg *Config) {
				require.Len(t, cfg.Jobs, 1)
				assert.Equal(t, "echo hello", cfg.Jobs[0].Args)
			},
		},
		{
			name: "missing env var fails validation",
			yaml: baseYAML + `
jobs:
  - subworld: small
    nprocs: 1
    args: echo ${MPISPAWNER_TEST_MISSING}
`,
			wantErr: true,
		},
		{
			name: "unknown field",
			yaml: baseYAML + `
tick_interval: 60s
`,
			wantErr: true,
		},
		{
			name: "job on unknown subworld",
			yaml: baseYAML + `
jobs:
  - subworld: medium
    nprocs: 1
`,
			wantErr: true,
		},
		{
			name: "job larger than its subworld",
			yaml: baseYAML + `
jobs:
  - subworld: small
    nprocs: 3
`,
			wantErr: true,
		},
		{
			name: "subworlds overflow the cluster",
			yaml: `
cluster:
  size: 4
subworlds:
  - name: big
    group_size: 4
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.yaml), 0o644))

			cfg, err := Load(configPath)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, configPath, cfg.SourcePath)
			if tt.checkFn != nil {
				tt.checkFn(t, cfg)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(baseYAML), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "config.yaml"), cfg.SourcePath)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestInterpolateEnv(t *testing.T) {
	tests := []struct {
		name  string
		input string
		env   map[string]string
		want  string
	}{
		{
			name:  "simple replacement",
			input: "path: ${MPISPAWNER_HOME}/data",
			env:   map[string]string{"MPISPAWNER_HOME": "/users/test"},
			want:  "path: /users/test/data",
		},
		{
			name:  "multiple vars",
			input: "${MS_A}:${MS_B}",
			env:   map[string]string{"MS_A": "x", "MS_B": "y"},
			want:  "x:y",
		},
		{
			name:  "undefined var unchanged",
			input: "key: ${MPISPAWNER_UNDEFINED}",
			want:  "key: ${MPISPAWNER_UNDEFINED}",
		},
		{
			name:  "no vars",
			input: "plain text",
			want:  "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.want, interpolateEnv(tt.input))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Cluster = ClusterConfig{Size: 4, MasterRank: 0}
		cfg.Subworlds = []SubworldConfig{{Name: "pair", GroupSize: 2, Groups: 1}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "invalid log level", mutate: func(c *Config) { c.Service.LogLevel = "trace" }, wantErr: "log_level"},
		{name: "invalid log format", mutate: func(c *Config) { c.Service.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "negative run timeout", mutate: func(c *Config) { c.Service.RunTimeout = -time.Second }, wantErr: "run_timeout"},
		{name: "cluster too small", mutate: func(c *Config) { c.Cluster.Size = 1 }, wantErr: "cluster.size"},
		{name: "master out of range", mutate: func(c *Config) { c.Cluster.MasterRank = 4 }, wantErr: "master_rank"},
		{name: "args size over protocol cap", mutate: func(c *Config) { c.Spawn.ArgsSize = 8193 }, wantErr: "args_size"},
		{name: "unnamed subworld", mutate: func(c *Config) { c.Subworlds[0].Name = "" }, wantErr: "name is required"},
		{
			name: "duplicate subworld",
			mutate: func(c *Config) {
				c.Subworlds = append(c.Subworlds, SubworldConfig{Name: "pair", GroupSize: 1, Groups: 1})
			},
			wantErr: "duplicate",
		},
		{name: "zero group size", mutate: func(c *Config) { c.Subworlds[0].GroupSize = 0 }, wantErr: "group_size"},
		{
			name: "args over configured size",
			mutate: func(c *Config) {
				c.Spawn.ArgsSize = 4
				c.Jobs = []JobConfig{{Subworld: "pair", NProcs: 1, Args: "hello"}}
			},
			wantErr: "exceed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
