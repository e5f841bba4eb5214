package api

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/nlquery/nlquery/internal/config"
	"github.com/nlquery/nlquery/internal/history"
	"github.com/nlquery/nlquery/internal/observability"
	"github.com/nlquery/nlquery/internal/pipeline"
)

const maxRequestBodyBytes = 1 << 20

type chatRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Answer     string   `json:"answer"`
	SQL        string   `json:"sql,omitempty"`
	Columns    []string `json:"columns,omitempty"`
	Rows       [][]any  `json:"rows,omitempty"`
	Truncated  bool     `json:"truncated,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	ExchangeID string   `json:"exchange_id,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorCode  string   `json:"error_code,omitempty"`
	TraceID    string   `json:"trace_id"`
}

type translateRequest struct {
	Question string `json:"question"`
}

func handleChat(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "question pipeline is not configured", false, nil)
		return
	}

	request, err := decodeChatRequest(w, r)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	question, err := pipeline.ValidateQuestion(request.Question, cfg.Pipeline.MaxQuestionLength)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	var session *history.Session
	if deps.Sessions != nil {
		session, err = deps.Sessions.Open(request.SessionID)
		if err != nil {
			if errors.Is(err, history.ErrSessionNotFound) {
				writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": request.SessionID})
				return
			}
			writeError(r.Context(), w, http.StatusInternalServerError, "SESSION_FAILED", err.Error(), true, nil)
			return
		}
	}

	outcome := deps.Pipeline.Ask(r.Context(), session, question)
	response := chatResponse{
		Answer:     outcome.Answer,
		SQL:        outcome.SQL,
		Columns:    outcome.Columns,
		Rows:       outcome.Rows,
		Truncated:  outcome.Truncated,
		SessionID:  outcome.SessionID,
		ExchangeID: outcome.ExchangeID,
		TraceID:    observability.TraceIDFromContext(r.Context()),
	}
	if outcome.Failed() {
		response.ErrorCode = outcome.ErrorCode()
		if outcome.Err != nil {
			response.Error = outcome.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// decodeChatRequest accepts a JSON body or a form with a user_input field.
func decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxRequestBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return chatRequest{}, err
		}
		question := r.PostFormValue("user_input")
		if question == "" {
			question = r.PostFormValue("question")
		}
		return chatRequest{Question: question, SessionID: r.PostFormValue("session_id")}, nil
	default:
		var request chatRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			return chatRequest{}, err
		}
		return request, nil
	}
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}

	var req translateRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid translation request body", false, map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Pipeline.Translate(r.Context(), req.Question)
	if err != nil {
		var validationErr *pipeline.ValidationError
		if errors.As(err, &validationErr) {
			writeValidationError(w, r, err)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "TRANSLATE_FAILED", "failed to translate question", true, map[string]any{"details": err.Error()})
		return
	}

	response := map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
	}
	if deps.Policy != nil {
		policyErr := deps.Policy.Check(result.SQL)
		response["allowed"] = policyErr == nil
		if policyErr != nil {
			response["policy_error"] = policyErr.Error()
		}
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Pipeline.Schema())
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Sessions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "chat history is not configured", false, nil)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	sessionID := r.PathValue("id")
	session, err := deps.Sessions.Get(sessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", false, map[string]any{"session_id": sessionID})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session.ID,
		"exchanges":  session.Exchanges(limit),
	})
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	code := "INVALID_QUESTION"
	var validationErr *pipeline.ValidationError
	if errors.As(err, &validationErr) {
		code = validationErr.Code
	}
	writeError(r.Context(), w, http.StatusBadRequest, code, err.Error(), false, nil)
}
