package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// DatasetTable maps a table name to a parquet object or, when Key ends with a
// slash, to every parquet object under that prefix.
type DatasetTable struct {
	Name string
	Key  string
}

func (t DatasetTable) IsPrefix() bool {
	return strings.HasSuffix(t.Key, "/")
}

// ParseDatasetTables parses "table=key,table2=prefix/" into dataset tables.
func ParseDatasetTables(raw string) ([]DatasetTable, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	seen := map[string]struct{}{}
	tables := make([]DatasetTable, 0)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, key, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid dataset entry %q: want table=key", entry)
		}
		table := DatasetTable{Name: strings.TrimSpace(name), Key: strings.TrimSpace(key)}
		if err := table.Validate(); err != nil {
			return nil, err
		}
		lowered := strings.ToLower(table.Name)
		if _, dup := seen[lowered]; dup {
			return nil, fmt.Errorf("duplicate dataset table %q", table.Name)
		}
		seen[lowered] = struct{}{}
		tables = append(tables, table)
	}
	return tables, nil
}

func (t DatasetTable) Validate() error {
	if !tableNamePattern.MatchString(t.Name) {
		return fmt.Errorf("invalid table name: %q", t.Name)
	}
	return ValidateKey(t.Key)
}

// ValidateKey rejects empty keys and keys escaping the bucket root.
func ValidateKey(key string) error {
	trimmed := strings.TrimPrefix(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("invalid object key: %q", key)
	}
	return nil
}
