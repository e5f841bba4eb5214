package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("nlquery-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Database.Driver != DriverDuckDB {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.QueryTimeout != 10*time.Second {
		t.Fatalf("Database.QueryTimeout = %s", cfg.Database.QueryTimeout)
	}
	if cfg.AI.Provider != ProviderOpenAI {
		t.Fatalf("AI.Provider = %q", cfg.AI.Provider)
	}
	if cfg.AI.Timeout != 20*time.Second {
		t.Fatalf("AI.Timeout = %s", cfg.AI.Timeout)
	}
	if cfg.Pipeline.MaxQuestionLength != 2000 {
		t.Fatalf("Pipeline.MaxQuestionLength = %d", cfg.Pipeline.MaxQuestionLength)
	}
	if !cfg.Pipeline.Summarize {
		t.Fatal("Pipeline.Summarize should default to true")
	}
	if cfg.Pipeline.FallbackAnswer != "I couldn't find an answer" {
		t.Fatalf("Pipeline.FallbackAnswer = %q", cfg.Pipeline.FallbackAnswer)
	}
	if cfg.Pipeline.HistoryCapacity != 50 {
		t.Fatalf("Pipeline.HistoryCapacity = %d", cfg.Pipeline.HistoryCapacity)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadTestProfileUsesInMemoryDatabase(t *testing.T) {
	cfg, err := Load("nlquery-api", mapLookup(map[string]string{"NLQUERY_PROFILE": "test"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.DSN != "" {
		t.Fatalf("Database.DSN = %q, want in-memory", cfg.Database.DSN)
	}
	if cfg.Observability.LogLevel != slog.LevelWarn {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"NLQUERY_PROFILE":                      "prod",
		"NLQUERY_SERVICE_NAME":                 "nlquery-custom",
		"NLQUERY_HTTP_ADDR":                    ":9999",
		"NLQUERY_HTTP_READ_TIMEOUT":            "2s",
		"NLQUERY_DB_DRIVER":                    "PGX",
		"NLQUERY_DB_DSN":                       "postgres://example",
		"NLQUERY_DB_MAX_OPEN_CONNS":            "42",
		"NLQUERY_DB_QUERY_TIMEOUT":             "3s",
		"NLQUERY_DB_ROW_LIMIT":                 "25",
		"NLQUERY_OBJECTSTORE_BUCKET":           "datasets",
		"NLQUERY_DATASET_TABLES":               "customers=cm/customers.parquet",
		"NLQUERY_SCHEMA_FILE":                  "/etc/nlquery/schema.yaml",
		"NLQUERY_AI_PROVIDER":                  "gemini",
		"NLQUERY_AI_MODEL":                     "gemini-2.5-flash",
		"NLQUERY_AI_TEMPERATURE":               "0.3",
		"NLQUERY_AI_TIMEOUT":                   "21s",
		"NLQUERY_PIPELINE_MAX_QUESTION_LENGTH": "500",
		"NLQUERY_PIPELINE_SUMMARIZE":           "false",
		"NLQUERY_PIPELINE_FALLBACK_ANSWER":     "No answer available.",
		"NLQUERY_PIPELINE_HISTORY_CAPACITY":    "7",
		"NLQUERY_LOG_LEVEL":                    "error",
	})
	cfg, err := Load("nlquery-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "nlquery-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Fatalf("Database.Driver = %q", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 42 || cfg.Database.RowLimit != 25 {
		t.Fatalf("Database = %+v", cfg.Database)
	}
	if cfg.Database.QueryTimeout != 3*time.Second {
		t.Fatalf("Database.QueryTimeout = %s", cfg.Database.QueryTimeout)
	}
	if !cfg.ObjectStore.UseSSL {
		t.Fatal("ObjectStore.UseSSL should default to true in prod")
	}
	if cfg.Dataset.Tables != "customers=cm/customers.parquet" {
		t.Fatalf("Dataset.Tables = %q", cfg.Dataset.Tables)
	}
	if cfg.Schema.File != "/etc/nlquery/schema.yaml" {
		t.Fatalf("Schema.File = %q", cfg.Schema.File)
	}
	if cfg.AI.Provider != ProviderGemini || cfg.AI.Model != "gemini-2.5-flash" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.Pipeline.MaxQuestionLength != 500 || cfg.Pipeline.Summarize {
		t.Fatalf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.FallbackAnswer != "No answer available." || cfg.Pipeline.HistoryCapacity != 7 {
		t.Fatalf("Pipeline = %+v", cfg.Pipeline)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"NLQUERY_PROFILE": "oops"},
		{"NLQUERY_HTTP_READ_TIMEOUT": "NaN"},
		{"NLQUERY_DB_MAX_OPEN_CONNS": "oops"},
		{"NLQUERY_DB_DRIVER": "sqlite3"},
		{"NLQUERY_DB_DRIVER": "pgx", "NLQUERY_DB_DSN": ""},
		{"NLQUERY_AI_PROVIDER": "bard"},
		{"NLQUERY_AI_TEMPERATURE": "bad"},
		{"NLQUERY_PIPELINE_SUMMARIZE": "not-bool"},
		{"NLQUERY_PIPELINE_MAX_QUESTION_LENGTH": "0"},
		{"NLQUERY_PIPELINE_HISTORY_CAPACITY": "-1"},
		{"NLQUERY_PIPELINE_FALLBACK_ANSWER": "  "},
		{"NLQUERY_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("nlquery-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadDotEnvSkipsMissingAndKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "NLQUERY_TEST_DOTENV_NEW=from-file\nNLQUERY_TEST_DOTENV_EXISTING=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("NLQUERY_TEST_DOTENV_EXISTING", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("NLQUERY_TEST_DOTENV_NEW") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("NLQUERY_TEST_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("NLQUERY_TEST_DOTENV_NEW = %q", got)
	}
	if got := os.Getenv("NLQUERY_TEST_DOTENV_EXISTING"); got != "from-env" {
		t.Fatalf("NLQUERY_TEST_DOTENV_EXISTING = %q", got)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
