package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/nlquery/nlquery/internal/query"
	"github.com/nlquery/nlquery/internal/storage"
)

type Config struct {
	// Path is the database file. Empty opens an in-memory database.
	Path   string
	Pool   query.PoolConfig
	Store  storage.ObjectStore
	Tables []storage.DatasetTable
	// ReadOnly opens a file-backed database with access_mode=READ_ONLY. It
	// is ignored for in-memory databases and when dataset tables are mounted,
	// since mounting creates views.
	ReadOnly bool
}

// Database is a DuckDB handle whose dataset tables are views over parquet
// files copied from the object store into a private work directory.
type Database struct {
	DB      *sql.DB
	workDir string
}

func Open(ctx context.Context, cfg Config) (*Database, error) {
	if len(cfg.Tables) > 0 && cfg.Store == nil {
		return nil, fmt.Errorf("object store is required for dataset tables")
	}

	db, err := sql.Open("duckdb", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	cfg.Pool.Apply(db)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	database := &Database{DB: db}
	if len(cfg.Tables) == 0 {
		return database, nil
	}

	database.workDir, err = os.MkdirTemp("", "nlquery-dataset-")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create dataset dir: %w", err)
	}
	for _, table := range cfg.Tables {
		if err := database.mount(ctx, cfg.Store, table); err != nil {
			_ = database.Close()
			return nil, err
		}
	}
	return database, nil
}

func (d *Database) Close() error {
	err := d.DB.Close()
	if d.workDir != "" {
		_ = os.RemoveAll(d.workDir)
	}
	return err
}

func (d *Database) mount(ctx context.Context, store storage.ObjectStore, table storage.DatasetTable) error {
	keys, err := datasetKeys(ctx, store, table)
	if err != nil {
		return err
	}

	localPaths := make([]string, 0, len(keys))
	for index, key := range keys {
		localPath := filepath.Join(d.workDir, fmt.Sprintf("%s_%d.parquet", strings.ToLower(table.Name), index))
		if err := download(ctx, store, key, localPath); err != nil {
			return err
		}
		localPaths = append(localPaths, localPath)
	}

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(table.Name), quoteStringArray(localPaths))
	if _, err := d.DB.ExecContext(ctx, viewSQL); err != nil {
		return fmt.Errorf("create view for table %q: %w", table.Name, err)
	}
	return nil
}

func datasetKeys(ctx context.Context, store storage.ObjectStore, table storage.DatasetTable) ([]string, error) {
	if !table.IsPrefix() {
		return []string{table.Key}, nil
	}
	objects, err := store.List(ctx, table.Key)
	if err != nil {
		return nil, fmt.Errorf("list dataset %q: %w", table.Key, err)
	}
	keys := make([]string, 0, len(objects))
	for _, object := range objects {
		if strings.HasSuffix(strings.ToLower(object.Key), ".parquet") {
			keys = append(keys, object.Key)
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no parquet objects under %q for table %q", table.Key, table.Name)
	}
	return keys, nil
}

func download(ctx context.Context, store storage.ObjectStore, key, localPath string) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	file, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local parquet file %q: %w", localPath, err)
	}
	if _, err := io.Copy(file, reader); err != nil {
		_ = file.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	return file.Close()
}

func dsn(cfg Config) string {
	if !cfg.ReadOnly || strings.TrimSpace(cfg.Path) == "" || len(cfg.Tables) > 0 {
		return cfg.Path
	}
	separator := "?"
	if strings.Contains(cfg.Path, "?") {
		separator = "&"
	}
	return cfg.Path + separator + "access_mode=READ_ONLY"
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
