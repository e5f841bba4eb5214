package nlqueryctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// usageError marks failures that exit with status 2.
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }

func (e usageError) Unwrap() error { return e.err }

type runner struct {
	baseURL   string
	sessionID string
	timeout   time.Duration
	rawJSON   bool
	client    *http.Client
	stdout    io.Writer
	stderr    io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	r := &runner{stdout: stdout, stderr: stderr, client: defaults.HTTPClient}
	root := newRootCommand(r, defaults)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
	var usageErr usageError
	if errors.As(err, &usageErr) || strings.HasPrefix(err.Error(), "unknown command") {
		return 2
	}
	return 1
}

func newRootCommand(r *runner, defaults Options) *cobra.Command {
	root := &cobra.Command{
		Use:           "nlqueryctl",
		Short:         "Ask questions about your data in plain language",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return usageError{errors.New("a command is required")}
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if r.client == nil {
				r.client = &http.Client{Timeout: r.timeout}
			}
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&r.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "nlquery API base URL")
	flags.StringVar(&r.sessionID, "session", strings.TrimSpace(defaults.SessionID), "chat session id")
	flags.DurationVar(&r.timeout, "timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 30s)")
	flags.BoolVar(&r.rawJSON, "json", false, "print raw JSON responses")

	root.AddCommand(
		r.askCommand(),
		r.translateCommand(),
		r.schemaCommand(),
		r.historyCommand(),
		r.probeCommand("health", "/v1/health", "Check API liveness"),
		r.probeCommand("ready", "/v1/ready", "Check API readiness"),
	)
	return root
}

func requireQuestion(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(strings.Join(args, " ")) == "" {
		return usageError{fmt.Errorf("%s requires a question", cmd.Name())}
	}
	return nil
}

func (r *runner) askCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Answer a question using the connected database",
		Args:  requireQuestion,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]string{"question": strings.Join(args, " ")}
			if r.sessionID != "" {
				payload["session_id"] = r.sessionID
			}
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/chat", payload)
			if err != nil {
				return err
			}
			if r.rawJSON {
				return r.printJSON(body)
			}

			var response struct {
				Answer    string   `json:"answer"`
				SQL       string   `json:"sql"`
				Columns   []string `json:"columns"`
				Rows      [][]any  `json:"rows"`
				Truncated bool     `json:"truncated"`
				SessionID string   `json:"session_id"`
				ErrorCode string   `json:"error_code"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return fmt.Errorf("decode chat response: %w", err)
			}

			r.println(label("Answer") + " " + response.Answer)
			if response.SQL != "" {
				r.println(label("SQL") + " " + response.SQL)
			}
			if len(response.Columns) > 0 {
				if err := r.printTable(response.Columns, response.Rows); err != nil {
					return err
				}
				if response.Truncated {
					r.println("(result truncated by row limit)")
				}
			}
			if response.SessionID != "" {
				r.println(label("Session") + " " + response.SessionID)
			}
			if response.ErrorCode != "" {
				return fmt.Errorf("question could not be answered (%s)", response.ErrorCode)
			}
			return nil
		},
	}
}

func (r *runner) translateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <question...>",
		Short: "Show the SQL a question would run without executing it",
		Args:  requireQuestion,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := r.call(cmd.Context(), http.MethodPost, "/v1/query/translate", map[string]string{
				"question": strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			if r.rawJSON {
				return r.printJSON(body)
			}

			var response struct {
				SQL         string `json:"sql"`
				Provider    string `json:"provider"`
				Model       string `json:"model"`
				Allowed     *bool  `json:"allowed"`
				PolicyError string `json:"policy_error"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return fmt.Errorf("decode translate response: %w", err)
			}
			r.println(label("SQL") + " " + response.SQL)
			r.println(label("Model") + " " + strings.Trim(response.Provider+"/"+response.Model, "/"))
			if response.Allowed != nil {
				if *response.Allowed {
					r.println(label("Policy") + " allowed")
				} else {
					r.println(label("Policy") + " rejected: " + response.PolicyError)
				}
			}
			return nil
		},
	}
}

func (r *runner) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "List the tables the assistant can query",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := r.call(cmd.Context(), http.MethodGet, "/v1/schema", nil)
			if err != nil {
				return err
			}
			if r.rawJSON {
				return r.printJSON(body)
			}

			var response struct {
				Name    string `json:"name"`
				Dialect string `json:"dialect"`
				Tables  []struct {
					Name    string `json:"name"`
					Columns []struct {
						Name string `json:"name"`
					} `json:"columns"`
				} `json:"tables"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return fmt.Errorf("decode schema response: %w", err)
			}
			r.println(label("Schema") + " " + response.Name + " (" + response.Dialect + ")")
			rows := make([][]any, 0, len(response.Tables))
			for _, table := range response.Tables {
				names := make([]string, 0, len(table.Columns))
				for _, column := range table.Columns {
					names = append(names, column.Name)
				}
				rows = append(rows, []any{table.Name, strings.Join(names, ", ")})
			}
			return r.printTable([]string{"table", "columns"}, rows)
		},
	}
}

func (r *runner) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent exchanges of a chat session",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if r.sessionID == "" {
				return usageError{errors.New("history requires --session")}
			}
			if limit < 0 {
				return usageError{errors.New("--limit must not be negative")}
			}
			path := "/v1/sessions/" + url.PathEscape(r.sessionID) + "/history"
			if limit > 0 {
				path += "?limit=" + strconv.Itoa(limit)
			}
			body, err := r.call(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			if r.rawJSON {
				return r.printJSON(body)
			}

			var response struct {
				Exchanges []struct {
					Question    string    `json:"question"`
					SQL         string    `json:"sql"`
					Answer      string    `json:"answer"`
					FailureKind string    `json:"failure_kind"`
					CreatedAt   time.Time `json:"created_at"`
				} `json:"exchanges"`
			}
			if err := json.Unmarshal(body, &response); err != nil {
				return fmt.Errorf("decode history response: %w", err)
			}
			if len(response.Exchanges) == 0 {
				r.println("(no exchanges)")
				return nil
			}
			rows := make([][]any, 0, len(response.Exchanges))
			for _, exchange := range response.Exchanges {
				rows = append(rows, []any{
					exchange.CreatedAt.Local().Format(time.TimeOnly),
					exchange.Question,
					exchange.Answer,
					exchange.FailureKind,
				})
			}
			return r.printTable([]string{"time", "question", "answer", "failure"}, rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "number of most recent exchanges (0 = all)")
	return cmd
}

func (r *runner) probeCommand(name, path, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := r.call(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			return r.printJSON(body)
		},
	}
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageError{fmt.Errorf("%s takes no arguments, got %q", cmd.Name(), args)}
	}
	return nil
}

func (r *runner) call(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint := strings.TrimRight(r.baseURL, "/") + path
	code, body, err := doRequest(ctx, r.client, method, endpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if code >= 400 {
		return nil, apiError(code, body)
	}
	return body, nil
}

func doRequest(ctx context.Context, client *http.Client, method, url string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

func apiError(code int, body []byte) error {
	var envelope struct {
		ErrorCode string `json:"error_code"`
		Message   string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.ErrorCode != "" {
		return fmt.Errorf("http %d %s: %s", code, envelope.ErrorCode, envelope.Message)
	}
	return fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(body)))
}

func (r *runner) printJSON(body []byte) error {
	if pretty, ok := prettyJSON(body); ok {
		r.println(pretty)
		return nil
	}
	if len(body) > 0 {
		r.println(string(body))
	}
	return nil
}

func (r *runner) printTable(columns []string, rows [][]any) error {
	data := make(pterm.TableData, 0, len(rows)+1)
	data = append(data, columns)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		data = append(data, cells)
	}
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	r.println(rendered)
	return nil
}

func (r *runner) println(line string) {
	_, _ = fmt.Fprintln(r.stdout, line)
}

func label(name string) string {
	return pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(name + ":")
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
