package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configFile holds the structure written to config.yaml by init.
type configFile struct {
	SchemaFile  string `yaml:"schema_file"`
	MappingFile string `yaml:"mapping_file,omitempty"`
	DataDir     string `yaml:"data_dir,omitempty"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration and storage",
		Long: "Create the configuration directory and config.yaml, then create or\n" +
			"synchronize the database when the schema file exists.",
		Args: cobra.NoArgs,
		RunE: a.runInit,
	}
}

func (a *app) runInit(cmd *cobra.Command, _ []string) error {
	if err := os.MkdirAll(a.configDir, 0o755); err != nil {
		return sysErr(fmt.Errorf("create config directory: %w", err))
	}
	cf, err := a.initialConfig(cmd)
	if err != nil {
		return err
	}
	configPath := filepath.Join(a.configDir, configFileExt)
	if err := writeConfigIfMissing(configPath, cf); err != nil {
		return sysErr(fmt.Errorf("write config: %w", err))
	}
	if err := a.load(cmd); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := os.Stat(a.settings.SchemaFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "relmap initialized in %s\nwrite %s and run relmap sync\n", a.configDir, a.settings.SchemaFile)
		return nil
	}

	eng, err := a.openEngine(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer eng.Close()
	if err := a.renderer(out).syncResults(eng.Synced()); err != nil {
		return err
	}
	if !a.flags.jsonMode {
		fmt.Fprintf(out, "relmap initialized in %s\n", a.configDir)
	}
	return nil
}

// initialConfig builds config.yaml from the flags given to init. Paths given
// on the command line are stored absolute.
func (a *app) initialConfig(cmd *cobra.Command) (configFile, error) {
	cf := configFile{
		SchemaFile: defaultSchemaFile,
		LogLevel:   defaultLogLevel,
		LogFormat:  defaultLogFormat,
	}
	fs := cmd.Flags()
	for key, dst := range map[string]*string{
		cfgKeySchemaFile:  &cf.SchemaFile,
		cfgKeyMappingFile: &cf.MappingFile,
		cfgKeyLogLevel:    &cf.LogLevel,
		cfgKeyLogFormat:   &cf.LogFormat,
	} {
		f := fs.Lookup(flagName(key))
		if f == nil || !f.Changed {
			continue
		}
		*dst = f.Value.String()
	}
	for _, p := range []*string{&cf.SchemaFile, &cf.MappingFile} {
		if *p == "" || *p == defaultSchemaFile {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return cf, sysErr(err)
		}
		*p = abs
	}
	if a.flags.dataDir != "" {
		abs, err := filepath.Abs(a.flags.dataDir)
		if err != nil {
			return cf, sysErr(err)
		}
		cf.DataDir = abs
	}
	return cf, nil
}

// writeConfigIfMissing creates config.yaml from cfg if the file does not
// exist. An existing file is left alone.
func writeConfigIfMissing(path string, cfg configFile) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
