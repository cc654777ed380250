package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables consulted by GetDefaults and the passphrase prompt.
const (
	EnvHome       = "MMFPLACE_HOME"
	EnvConfig     = "MMFPLACE_CONFIG"
	EnvPassphrase = "MMFPLACE_PASSPHRASE"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MMFPLACE_CONFIG: config file location (default: ~/.config/mmfplace.toml)
//   - MMFPLACE_HOME: work directory holding the index (default: ~/.local/share/mmfplace)
//
// tools_dir is the "tools" directory next to the executable, where the
// metadata-extractor archives are bundled.
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	workDir, err := getWorkDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"work_dir":    workDir,
		"tools_dir":   getToolsDir(),
	}, nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfig); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "mmfplace.toml"), nil
}

func getWorkDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "mmfplace"), nil
}

func getToolsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "tools"
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), "tools")
}

// DefaultOutput is the output directory used when none is given: a sibling
// of input named "<input>.mmfplace".
func DefaultOutput(input string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("resolving input path: %w", err)
	}
	return filepath.Clean(abs) + ".mmfplace", nil
}
