package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest written next to a locked config.
const ChecksumFile = ".checksums"

// ChecksumManifest maps config file names to their BLAKE3 hashes.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Lock records the hash of the config at configPath in the checksum
// manifest of its directory. Later loads refuse a config that no longer
// matches.
func Lock(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(absPath)

	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	} else if err != nil {
		return "", err
	}

	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", absPath, err)
	}
	manifest.Hashes[filepath.Base(absPath)] = hash
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ChecksumFile), data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return hash, nil
}

// LoadChecksums reads the checksum manifest of a config directory.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFile))
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}
	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	return &manifest, nil
}

// verifyChecksum checks path against its directory's manifest. A directory
// without a manifest is not verified.
func verifyChecksum(path string) error {
	dir := filepath.Dir(path)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("config file %s has no hash in %s\n"+
			"Run: mpispawner config lock --config %s", name, filepath.Join(dir, ChecksumFile), path)
	}
	actual, err := ComputeBlake3Hash(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return fmt.Errorf("config verification failed for %s: expected %s, got %s\n"+
			"If you edited this file intentionally, run: mpispawner config lock --config %s", path, expected, actual, path)
	}
	return nil
}
