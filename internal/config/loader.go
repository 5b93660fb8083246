// Package config loads schema and mapping definition documents.
//
// Both documents are read with Viper, so JSON and YAML are accepted; the
// format follows the file extension. Loading validates everything up front
// and returns a *types.ConfigurationError for malformed input.
package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/relmap/pkg/types"
)

// schemaDoc mirrors the schema definition document.
type schemaDoc struct {
	Name     string     `mapstructure:"name"`
	Filename string     `mapstructure:"filename"`
	Tables   []tableDoc `mapstructure:"tables"`
}

type tableDoc struct {
	Name        string          `mapstructure:"name"`
	Columns     []columnDoc     `mapstructure:"columns"`
	PrimaryKey  string          `mapstructure:"primary_key"`
	ForeignKeys []foreignKeyDoc `mapstructure:"foreign_keys"`
}

type columnDoc struct {
	Name string `mapstructure:"name"`
	Type string `mapstructure:"type"`
}

type foreignKeyDoc struct {
	Column     string `mapstructure:"column"`
	References string `mapstructure:"references"` // "<table>.<column>"
}

// mappingDoc mirrors the mapping definition document.
type mappingDoc struct {
	ObjectDefinitions []objectDoc `mapstructure:"object_definitions"`
}

type objectDoc struct {
	ObjectName      string      `mapstructure:"object_name"`
	ObjectID        string      `mapstructure:"object_id"`
	TableName       string      `mapstructure:"table_name"`
	PropertySources []sourceDoc `mapstructure:"property_sources"`
}

type sourceDoc struct {
	Name       string `mapstructure:"name"`
	Type       string `mapstructure:"type"`
	SrcColumn  string `mapstructure:"src_column"`
	ObjectName string `mapstructure:"object_name"`
}

// LoadSchema reads and validates a schema definition file.
func LoadSchema(path string) (*types.Schema, error) {
	var doc schemaDoc
	if err := readFile(path, &doc); err != nil {
		return nil, err
	}
	return doc.schema()
}

// ReadSchema reads a schema definition in the given format ("json", "yaml").
func ReadSchema(r io.Reader, format string) (*types.Schema, error) {
	var doc schemaDoc
	if err := read(r, format, &doc); err != nil {
		return nil, err
	}
	return doc.schema()
}

// LoadMapping reads a mapping definition file and validates it against schema.
func LoadMapping(path string, schema *types.Schema) (*types.Mapping, error) {
	var doc mappingDoc
	if err := readFile(path, &doc); err != nil {
		return nil, err
	}
	return doc.mapping(schema)
}

// ReadMapping reads a mapping definition in the given format and validates it
// against schema.
func ReadMapping(r io.Reader, format string, schema *types.Schema) (*types.Mapping, error) {
	var doc mappingDoc
	if err := read(r, format, &doc); err != nil {
		return nil, err
	}
	return doc.mapping(schema)
}

func readFile(path string, out any) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(formatOf(path))
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return types.ConfigErrorf("decode %s: %v", path, err)
	}
	return nil
}

func read(r io.Reader, format string, out any) error {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return types.ConfigErrorf("parse %s document: %v", format, err)
	}
	if err := v.Unmarshal(out); err != nil {
		return types.ConfigErrorf("decode %s document: %v", format, err)
	}
	return nil
}

// formatOf maps a file extension to a Viper config type; unknown extensions
// are read as JSON.
func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

func (d schemaDoc) schema() (*types.Schema, error) {
	s := &types.Schema{
		Name:     d.Name,
		Filename: d.Filename,
		Tables:   make([]types.Table, 0, len(d.Tables)),
	}
	for _, td := range d.Tables {
		t := types.Table{
			Name:       td.Name,
			PrimaryKey: td.PrimaryKey,
			Columns:    make([]types.Column, 0, len(td.Columns)),
		}
		for _, cd := range td.Columns {
			typ, nullable, err := types.ParseColumnType(cd.Type)
			if err != nil {
				var cfgErr *types.ConfigurationError
				if errors.As(err, &cfgErr) {
					return nil, types.ConfigErrorf("column %s.%s: %s", td.Name, cd.Name, cfgErr.Message)
				}
				return nil, err
			}
			t.Columns = append(t.Columns, types.Column{Name: cd.Name, Type: typ, Nullable: nullable})
		}
		if t.PrimaryKey == "" && len(t.Columns) > 0 {
			t.PrimaryKey = t.Columns[0].Name
		}
		for _, fd := range td.ForeignKeys {
			table, column, ok := strings.Cut(fd.References, ".")
			if !ok || table == "" || column == "" {
				return nil, types.ConfigErrorf("foreign key %s.%s: references %q is not <table>.<column>",
					td.Name, fd.Column, fd.References)
			}
			t.ForeignKeys = append(t.ForeignKeys, types.ForeignKey{Column: fd.Column, RefTable: table, RefColumn: column})
		}
		s.Tables = append(s.Tables, t)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (d mappingDoc) mapping(schema *types.Schema) (*types.Mapping, error) {
	defs := make([]types.ObjectDefinition, 0, len(d.ObjectDefinitions))
	for _, od := range d.ObjectDefinitions {
		def := types.ObjectDefinition{
			Name:    od.ObjectName,
			IDField: od.ObjectID,
			Table:   od.TableName,
			Sources: make([]types.PropertySource, 0, len(od.PropertySources)),
		}
		for _, sd := range od.PropertySources {
			def.Sources = append(def.Sources, types.PropertySource{
				Name:   sd.Name,
				Kind:   types.SourceKind(strings.ToLower(sd.Type)),
				Column: sd.SrcColumn,
				Object: sd.ObjectName,
			})
		}
		defs = append(defs, def)
	}
	return types.NewMapping(defs, schema)
}
