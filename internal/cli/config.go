package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/relmap/internal/paths"
	"github.com/mesh-intelligence/relmap/pkg/relmap"
	"github.com/mesh-intelligence/relmap/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeySchemaFile  = "schema_file"
	cfgKeyMappingFile = "mapping_file"
	cfgKeyDataDir     = "data_dir"
	cfgKeyLogLevel    = "log_level"
	cfgKeyLogFormat   = "log_format"

	defaultSchemaFile = "schema.yaml"
	defaultLogLevel   = "warn"
	defaultLogFormat  = "text"
)

// boundKeys are the config keys a flag of the same name (in kebab case)
// overrides.
var boundKeys = map[string]bool{
	cfgKeySchemaFile:  true,
	cfgKeyMappingFile: true,
	cfgKeyLogLevel:    true,
	cfgKeyLogFormat:   true,
}

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# relmap CLI configuration

# Schema definition document (JSON or YAML), relative to this directory.
schema_file: schema.yaml

# Mapping definition document (optional).
# mapping_file: mapping.yaml

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Logging: debug, info, warn or error; text or json.
log_level: warn
log_format: text
`

// settings is the resolved configuration of one invocation. Paths are
// absolute.
type settings struct {
	SchemaFile  string
	MappingFile string
	DataDir     string
	LogLevel    string
	LogFormat   string
}

// loadConfig reads config.yaml from configDir using Viper, creating the
// directory and a default file on first run. Flags in fs override the keys
// they are bound to.
func loadConfig(configDir string, fs *pflag.FlagSet) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeySchemaFile, defaultSchemaFile)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyLogFormat, defaultLogFormat)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, types.ConfigErrorf("read %s: %v", filepath.Join(configDir, configFileExt), err)
		}
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}
	return v, nil
}

// bindFlags binds every flag in fs whose snake case name is a bound config
// key.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key := configKey(f.Name)
		if err != nil || !boundKeys[key] {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func configKey(flagName string) string { return strings.ReplaceAll(flagName, "-", "_") }

func flagName(key string) string { return strings.ReplaceAll(key, "_", "-") }

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// prepare resolves directories and loads config.yaml before every command
// except version, help and completion, which need none, and init, which
// writes it first.
func (a *app) prepare(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" || cmd.Name() == "help" ||
		(cmd.HasParent() && cmd.Parent().Name() == "completion") {
		return nil
	}
	dir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return sysErr(fmt.Errorf("resolve config dir: %w", err))
	}
	a.configDir = dir
	if cmd.Name() == "init" {
		return nil
	}
	return a.load(cmd)
}

// load reads config.yaml and resolves settings and the logger.
func (a *app) load(cmd *cobra.Command) error {
	fs := cmd.Flags()
	v, err := loadConfig(a.configDir, fs)
	if err != nil {
		return sysErr(err)
	}

	s := settings{
		LogLevel:  v.GetString(cfgKeyLogLevel),
		LogFormat: v.GetString(cfgKeyLogFormat),
	}
	if s.SchemaFile, err = a.resolveFile(v, fs, cfgKeySchemaFile); err != nil {
		return err
	}
	if s.MappingFile, err = a.resolveFile(v, fs, cfgKeyMappingFile); err != nil {
		return err
	}
	if s.DataDir, err = paths.ResolveDataDir(a.flags.dataDir, v.GetString(cfgKeyDataDir), a.configDir); err != nil {
		return sysErr(fmt.Errorf("resolve data dir: %w", err))
	}
	if a.flags.verbose {
		s.LogLevel = "debug"
	}
	logger, err := newLogger(cmd.ErrOrStderr(), s.LogLevel, s.LogFormat)
	if err != nil {
		return err
	}

	a.settings = s
	a.logger = logger
	a.logger.Debug("configuration loaded", "config_dir", a.configDir, "schema", s.SchemaFile, "data_dir", s.DataDir)
	return nil
}

// resolveFile returns the absolute path stored under key. Values given on
// the command line are relative to the working directory, values from
// config.yaml to the config directory.
func (a *app) resolveFile(v *viper.Viper, fs *pflag.FlagSet, key string) (string, error) {
	base := a.configDir
	if f := fs.Lookup(flagName(key)); f != nil && f.Changed {
		base = ""
	}
	p, err := paths.Resolve(base, v.GetString(key))
	if err != nil {
		return "", sysErr(fmt.Errorf("resolve %s: %w", key, err))
	}
	return p, nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, types.ConfigErrorf("log level %q: %v", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, types.ConfigErrorf("log format %q is neither text nor json", format)
	}
}

// openEngine opens the store described by the loaded settings. Read-only
// commands pass skipSync.
func (a *app) openEngine(ctx context.Context, skipSync bool) (*relmap.Engine, error) {
	if _, err := os.Stat(a.settings.SchemaFile); err != nil {
		return nil, types.ConfigErrorf("schema file %s: %v", a.settings.SchemaFile, err)
	}
	eng, err := relmap.Open(ctx, relmap.Config{
		SchemaFile:  a.settings.SchemaFile,
		MappingFile: a.settings.MappingFile,
		DataDir:     a.settings.DataDir,
		SkipSync:    skipSync,
		Logger:      a.logger,
	}, nil)
	if err != nil {
		return nil, sysErr(err)
	}
	return eng, nil
}
