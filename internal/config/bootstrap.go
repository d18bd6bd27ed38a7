package config

import (
	"errors"
	"os"
	"path/filepath"
)

const FileName = "pipeline.yml"

// EnsureUserConfig returns the config path inside dataDir, writing the
// embedded defaults there first if the file does not exist yet.
func EnsureUserConfig(dataDir string) (string, error) {
	userPath := filepath.Join(dataDir, FileName)

	_, err := os.Stat(userPath)
	if err == nil {
		return userPath, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	tmp := userPath + ".tmp"
	if err := os.WriteFile(tmp, defaultYAML, 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, userPath); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return userPath, nil
}

// Resolve makes a config-relative path absolute against dataDir.
func Resolve(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}
