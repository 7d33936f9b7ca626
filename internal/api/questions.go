package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/querywright/querywright/internal/auth"
	"github.com/querywright/querywright/internal/catalog"
	"github.com/querywright/querywright/internal/credentials"
	"github.com/querywright/querywright/internal/nl2sql"
	"github.com/querywright/querywright/internal/observability"
)

const maxContextLimit = 100

type questionRequest struct {
	DBConnectionID string                  `json:"db_connection_id"`
	Question       string                  `json:"question"`
	Strategy       string                  `json:"strategy"`
	UseContext     bool                    `json:"use_context"`
	ContextLimit   int                     `json:"context_limit"`
	Context        []nl2sql.ContextExample `json:"context"`
}

func (s *server) handleAskQuestion(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil || s.deps.Generators == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUESTIONS_NOT_CONFIGURED", "question dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request questionRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return
	}
	request.Question = strings.TrimSpace(request.Question)
	if strings.TrimSpace(request.DBConnectionID) == "" || request.Question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FIELDS_REQUIRED", "db_connection_id and question are required", false, nil)
		return
	}
	if request.ContextLimit < 0 || request.ContextLimit > maxContextLimit {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONTEXT_LIMIT", "context_limit must be between 0 and 100", false, nil)
		return
	}

	generator, err := s.deps.Generators.Get(request.Strategy)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNKNOWN_STRATEGY", err.Error(), false, map[string]any{"strategy": request.Strategy})
		return
	}
	conn, err := s.deps.Catalog.GetDatabaseConnection(r.Context(), request.DBConnectionID)
	if err != nil {
		writeCatalogLookupError(w, r, err, "CONNECTION_NOT_FOUND", "database connection not found")
		return
	}

	examples, err := s.contextExamples(r, request)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to load context examples", true, map[string]any{"details": err.Error()})
		return
	}

	question, err := s.deps.Catalog.CreateQuestion(r.Context(), catalog.CreateQuestionInput{
		DBConnectionID: conn.ID,
		Text:           request.Question,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to store question", true, map[string]any{"details": err.Error()})
		return
	}

	response, err := generator.GenerateResponse(r.Context(), question, conn, examples)
	if err != nil {
		s.writeGenerationError(w, r, question, err)
		return
	}

	stored, err := s.deps.Catalog.CreateQueryResponse(r.Context(), response)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to store response", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// contextExamples returns nil when the request carries no context. Explicit
// context wins over golden record retrieval.
func (s *server) contextExamples(r *http.Request, request questionRequest) ([]nl2sql.ContextExample, error) {
	if request.Context != nil {
		return request.Context, nil
	}
	if !request.UseContext {
		return nil, nil
	}
	limit := request.ContextLimit
	if limit == 0 {
		limit = s.cfg.AI.DefaultContextN
	}
	records, err := s.deps.Catalog.ListGoldenRecords(r.Context(), request.DBConnectionID, limit)
	if err != nil {
		return nil, err
	}
	return catalog.Examples(records), nil
}

func (s *server) writeGenerationError(w http.ResponseWriter, r *http.Request, question nl2sql.Question, err error) {
	s.deps.Logger.ErrorContext(r.Context(), "sql generation failed",
		observability.TraceAttr(r.Context()),
		slog.String("question_id", question.ID),
		slog.String("error", err.Error()),
	)
	details := map[string]any{"question_id": question.ID, "details": err.Error()}

	var exhausted *nl2sql.CompletionExhaustedError
	switch {
	case errors.As(err, &exhausted):
		details["attempts"] = exhausted.Attempts
		writeError(r.Context(), w, http.StatusBadGateway, "COMPLETION_EXHAUSTED", "completion service did not return a usable answer", true, details)
	case errors.Is(err, credentials.ErrInvalidToken):
		writeError(r.Context(), w, http.StatusUnprocessableEntity, "INVALID_CONNECTION_CREDENTIALS", "stored connection credentials could not be decrypted", false, details)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "GENERATION_FAILED", "failed to generate sql", true, details)
	}
}

func (s *server) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "RESPONSES_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleQueryWriter); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	response, err := s.deps.Catalog.GetQueryResponse(r.Context(), r.PathValue("id"))
	if err != nil {
		writeCatalogLookupError(w, r, err, "RESPONSE_NOT_FOUND", "response not found")
		return
	}
	writeJSON(w, http.StatusOK, response)
}
