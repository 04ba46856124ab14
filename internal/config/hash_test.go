package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(baseYAML), 0o644))
	return path
}

func TestLockThenLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	hash, err := Lock(path)
	require.NoError(t, err)
	assert.Len(t, hash, 64)

	manifest, err := LoadChecksums(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Version)
	assert.Equal(t, hash, manifest.Hashes["config.yaml"])
	assert.NotEmpty(t, manifest.GeneratedAt)

	_, err = Load(path)
	require.NoError(t, err)
}

func TestLoadRejectsModifiedLockedConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	_, err := Lock(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(baseYAML+"\n# edited\n"), 0o644))

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config verification failed")

	// Relocking accepts the edit.
	_, err = Lock(path)
	require.NoError(t, err)
	_, err = Load(path)
	require.NoError(t, err)
}

func TestLoadRejectsUnlistedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	other := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(other, []byte(baseYAML), 0o644))
	_, err := Lock(other)
	require.NoError(t, err)

	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no hash")
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChecksumFile), []byte("version: 2\nhashes: {}\n"), 0o600))

	_, err := LoadChecksums(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported checksums version")
}

func TestComputeBlake3HashIsStable(t *testing.T) {
	path := writeConfig(t, t.TempDir())
	a, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	b, err := ComputeBlake3Hash(path)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = ComputeBlake3Hash(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestLoadUnverifiedSkipsChecksum(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)
	_, err := Lock(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(baseYAML+"\n# edited\n"), 0o644))

	cfg, err := LoadUnverified(dir)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.SourcePath)
}
