// Package paths resolves configuration and data directory locations for the
// relmap CLI.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "relmap"

// CWD-relative directory names.
const (
	DefaultConfigDirName = ".relmap"
	DefaultDataDirName   = ".relmap-db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "RELMAP_CONFIG_DIR"
	EnvDataDir   = "RELMAP_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// userDir returns the per-user directory for relmap. On Linux it follows the
// XDG variable xdgEnv, falling back to ~/<fallback>; elsewhere it uses
// os.UserConfigDir.
func userDir(xdgEnv string, fallback ...string) (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv(xdgEnv); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(append(append([]string{home}, fallback...), AppName)...), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfigDir returns the platform-specific configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/relmap (fallback ~/.config/relmap)
// macOS:   ~/Library/Application Support/relmap
// Windows: %APPDATA%/relmap
func DefaultConfigDir() (string, error) {
	return userDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the platform-specific data directory.
//
// Linux:   $XDG_DATA_HOME/relmap (fallback ~/.local/share/relmap)
// macOS and Windows: same as the configuration directory.
func DefaultDataDir() (string, error) {
	return userDir("XDG_DATA_HOME", ".local", "share")
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > RELMAP_CONFIG_DIR > $(CWD)/.relmap when it exists >
// DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	local := filepath.Join(cwd, DefaultConfigDirName)
	if fi, err := os.Stat(local); err == nil && fi.IsDir() {
		return local, nil
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > config.yaml data_dir > RELMAP_DATA_DIR > $(CWD)/.relmap-db.
// A relative data_dir from config.yaml is taken relative to configDir.
func ResolveDataDir(flag, configValue, configDir string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return Resolve(configDir, configValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// Resolve returns p as an absolute path, joining relative paths onto base.
// An empty base resolves against the working directory.
func Resolve(base, p string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return p, nil
	}
	if base == "" {
		return filepath.Abs(p)
	}
	return filepath.Abs(filepath.Join(base, p))
}
