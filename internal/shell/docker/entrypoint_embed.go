package docker

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
)

// EntrypointScriptName is the file name of the materialised wrapper.
const EntrypointScriptName = "entrypoint.sh"

// entrypointScript is bind-mounted into every riptide container and
// replaces the image entrypoint.
//
//go:embed assets/entrypoint.sh
var entrypointScript []byte

// WriteEntrypointScript writes the wrapper into dir and returns its path.
// An identical existing file is left alone.
func WriteEntrypointScript(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create assets directory: %w", err)
	}

	path := filepath.Join(dir, EntrypointScriptName)
	if existing, err := os.ReadFile(path); err == nil && string(existing) == string(entrypointScript) {
		return path, nil
	}

	if err := os.WriteFile(path, entrypointScript, 0o755); err != nil {
		return "", fmt.Errorf("failed to write entrypoint script: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to make entrypoint script executable: %w", err)
	}
	return path, nil
}

// DefaultAssetsDir returns the per-user directory the wrapper is written to.
func DefaultAssetsDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "riptide-engine")
}
