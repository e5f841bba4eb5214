package nlqueryctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRunAskCommand(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"There are 36 customers in the USA.","sql":"SELECT COUNT(*) FROM customers WHERE country='USA'","columns":["count"],"rows":[[36]],"session_id":"s-1","trace_id":"t"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--session", "s-1",
		"ask", "How", "many", "customers", "are", "in", "the", "USA?",
	}, Options{Stdout: &stdout, Stderr: &stderr, Timeout: 2 * time.Second})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/chat" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody["question"] != "How many customers are in the USA?" || gotBody["session_id"] != "s-1" {
		t.Fatalf("request body = %#v", gotBody)
	}
	out := stdout.String()
	for _, want := range []string{"There are 36 customers in the USA.", "SELECT COUNT(*) FROM customers", "36", "s-1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunAskFailureExitsNonZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"answer":"I can only run read-only queries.","sql":"DROP TABLE customers","error":"unsupported statement: DROP","error_code":"SQL_NOT_ALLOWED","session_id":"s-2"}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "drop everything"}, Options{Stdout: &stdout, Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "I can only run read-only queries.") {
		t.Fatalf("stdout = %s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "SQL_NOT_ALLOWED") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunAskRequiresQuestion(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"ask"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunTranslateCommand(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"sql":"DELETE FROM customers","provider":"openai","model":"gpt-4o-mini","allowed":false,"policy_error":"unsupported statement: DELETE"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "translate", "remove", "customers"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/query/translate" {
		t.Fatalf("path = %s", gotPath)
	}
	out := stdout.String()
	if !strings.Contains(out, "DELETE FROM customers") || !strings.Contains(out, "rejected: unsupported statement: DELETE") {
		t.Fatalf("output = %s", out)
	}
	if !strings.Contains(out, "openai/gpt-4o-mini") {
		t.Fatalf("output missing model: %s", out)
	}
}

func TestRunSchemaCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/schema" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"name":"classicmodels","dialect":"duckdb","tables":[{"name":"customers","columns":[{"name":"customerNumber"},{"name":"country"}]}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "schema"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	out := stdout.String()
	if !strings.Contains(out, "customers") || !strings.Contains(out, "customerNumber, country") {
		t.Fatalf("output = %s", out)
	}
}

func TestRunHistoryCommand(t *testing.T) {
	var gotPath, gotLimit string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLimit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(`{"session_id":"s-1","exchanges":[{"question":"How many customers?","answer":"122","created_at":"2026-01-02T03:04:05Z"}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "--session", "s-1", "history", "--limit", "5"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/sessions/s-1/history" || gotLimit != "5" {
		t.Fatalf("request path=%s limit=%s", gotPath, gotLimit)
	}
	if !strings.Contains(stdout.String(), "How many customers?") {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestRunHistoryRequiresSession(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"history"}, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "--session") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunHealthCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "health"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), `"status": "ok"`) {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestRunReturnsErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error_code":"SESSION_NOT_FOUND","message":"session not found"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "--session", "missing", "history"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "http 404 SESSION_NOT_FOUND: session not found") {
		t.Fatalf("stderr = %s", stderr.String())
	}
}

func TestRunUnknownCommand(t *testing.T) {
	code := Run(context.Background(), []string{"nope"}, Options{})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}

func TestRunWithoutCommand(t *testing.T) {
	code := Run(context.Background(), nil, Options{})
	if code != 2 {
		t.Fatalf("exit code = %d, want 2", code)
	}
}
