package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FieldDef declares one column of a table schema.
type FieldDef struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Nullable  bool   `yaml:"nullable"`
	IsPrimary bool   `yaml:"is_primary"`

	parsed Type
}

// ParsedType returns the declared universal type.
func (f *FieldDef) ParsedType() Type { return f.parsed }

// NewFieldDef constructs a field declaration from an already-parsed type.
// Adapters use it to express introspected source metadata as a schema.
func NewFieldDef(name string, t Type, nullable, isPrimary bool) FieldDef {
	return FieldDef{Name: name, Type: t.String(), Nullable: nullable, IsPrimary: isPrimary, parsed: t}
}

// TableDef declares one table.
type TableDef struct {
	Name   string     `yaml:"name"`
	Fields []FieldDef `yaml:"fields"`
}

// Field looks up a field declaration by name.
func (t *TableDef) Field(name string) *FieldDef {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// PrimaryKey returns the declared primary key field, or nil.
func (t *TableDef) PrimaryKey() *FieldDef {
	for i := range t.Fields {
		if t.Fields[i].IsPrimary {
			return &t.Fields[i]
		}
	}
	return nil
}

// Schema is an optional, operator-supplied declaration of source tables.
// When present, adapters coerce values to the declared types and fail with a
// TypeConversionError on mismatch; when absent, adapters infer types from
// source metadata.
type Schema struct {
	Tables []TableDef `yaml:"tables"`
}

// Table looks up a table declaration by name.
func (s *Schema) Table(name string) *TableDef {
	if s == nil {
		return nil
	}
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// DeclaredType returns the declared type of table.field, or nil when the
// schema does not cover it.
func (s *Schema) DeclaredType(table, field string) *Type {
	t := s.Table(table)
	if t == nil {
		return nil
	}
	f := t.Field(field)
	if f == nil {
		return nil
	}
	ty := f.parsed
	return &ty
}

// JSONFieldPaths lists "table.field" paths declared as json or jsonb. The
// Neo4j adapter uses these to decide which string properties hold serialised
// JSON documents.
func (s *Schema) JSONFieldPaths() []string {
	if s == nil {
		return nil
	}
	var paths []string
	for _, t := range s.Tables {
		for _, f := range t.Fields {
			if f.parsed.Kind == KindJson || f.parsed.Kind == KindJsonb {
				paths = append(paths, t.Name+"."+f.Name)
			}
		}
	}
	return paths
}

// LoadSchema reads and validates a YAML schema file.
func LoadSchema(path string) (*Schema, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("reading schema file %s", path), Err: err}
	}
	return ParseSchema(body)
}

// ParseSchema parses YAML schema content.
func ParseSchema(body []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(body, &s); err != nil {
		return nil, &ConfigError{Msg: "parsing schema file", Err: err}
	}
	for ti := range s.Tables {
		t := &s.Tables[ti]
		if t.Name == "" {
			return nil, &ConfigError{Msg: fmt.Sprintf("schema table %d has no name", ti)}
		}
		for fi := range t.Fields {
			f := &t.Fields[fi]
			parsed, err := ParseType(f.Type)
			if err != nil {
				return nil, &ConfigError{
					Msg: fmt.Sprintf("schema field %s.%s has invalid type %q", t.Name, f.Name, f.Type),
					Err: err,
				}
			}
			f.parsed = parsed
		}
	}
	return &s, nil
}
