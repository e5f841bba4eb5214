// Package schema holds the static description of the target database that is
// embedded into generation prompts. A description is loaded once at startup
// and never mutated afterwards.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed classicmodels.yaml
var classicModelsYAML []byte

type Column struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type,omitempty"`
	Description string `yaml:"description" json:"description,omitempty"`
}

type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	Columns     []Column `yaml:"columns" json:"columns"`
}

type Description struct {
	Name    string  `yaml:"name" json:"name"`
	Dialect string  `yaml:"dialect" json:"dialect"`
	Tables  []Table `yaml:"tables" json:"tables"`
}

// Default returns the embedded classicmodels description.
func Default() Description {
	desc, err := Parse(classicModelsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded schema is invalid: %v", err))
	}
	return desc
}

// Load reads a YAML description from path. An empty path yields Default.
func Load(path string) (Description, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("read schema file %q: %w", path, err)
	}
	desc, err := Parse(raw)
	if err != nil {
		return Description{}, fmt.Errorf("schema file %q: %w", path, err)
	}
	return desc, nil
}

func Parse(raw []byte) (Description, error) {
	var desc Description
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return Description{}, fmt.Errorf("decode schema yaml: %w", err)
	}
	desc.normalize()
	if err := desc.Validate(); err != nil {
		return Description{}, err
	}
	return desc, nil
}

func (d *Description) normalize() {
	d.Name = strings.TrimSpace(d.Name)
	d.Dialect = strings.TrimSpace(d.Dialect)
	if d.Dialect == "" {
		d.Dialect = "SQL"
	}
	for i := range d.Tables {
		d.Tables[i].Name = strings.TrimSpace(d.Tables[i].Name)
		d.Tables[i].Description = strings.TrimSpace(d.Tables[i].Description)
		for j := range d.Tables[i].Columns {
			col := &d.Tables[i].Columns[j]
			col.Name = strings.TrimSpace(col.Name)
			col.Type = strings.TrimSpace(col.Type)
			col.Description = strings.TrimSpace(col.Description)
		}
	}
}

func (d Description) Validate() error {
	if len(d.Tables) == 0 {
		return fmt.Errorf("schema must declare at least one table")
	}
	seen := make(map[string]struct{}, len(d.Tables))
	for _, table := range d.Tables {
		if table.Name == "" {
			return fmt.Errorf("schema table name is required")
		}
		key := strings.ToLower(table.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate schema table %q", table.Name)
		}
		seen[key] = struct{}{}
		if len(table.Columns) == 0 {
			return fmt.Errorf("schema table %q has no columns", table.Name)
		}
		for _, col := range table.Columns {
			if col.Name == "" {
				return fmt.Errorf("schema table %q has a column without a name", table.Name)
			}
		}
	}
	return nil
}

// TableNames returns the declared table names in sorted order.
func (d Description) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for _, table := range d.Tables {
		names = append(names, table.Name)
	}
	sort.Strings(names)
	return names
}

// Copy returns a deep copy so callers cannot mutate a shared description.
func (d Description) Copy() Description {
	out := Description{Name: d.Name, Dialect: d.Dialect, Tables: make([]Table, len(d.Tables))}
	for i, table := range d.Tables {
		out.Tables[i] = Table{
			Name:        table.Name,
			Description: table.Description,
			Columns:     append([]Column(nil), table.Columns...),
		}
	}
	return out
}

// Render formats the description as one line per table, in declaration
// order, for embedding into prompts.
func (d Description) Render() string {
	var b strings.Builder
	for _, table := range d.Tables {
		b.WriteString(table.Name)
		b.WriteString("(")
		for i, col := range table.Columns {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(col.Name)
			if col.Type != "" {
				b.WriteString(" ")
				b.WriteString(col.Type)
			}
			if col.Description != "" {
				b.WriteString(" -- ")
				b.WriteString(col.Description)
			}
		}
		b.WriteString(")")
		if table.Description != "" {
			b.WriteString(" -- ")
			b.WriteString(table.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}
