package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/querywright/querywright/internal/auth"
	"github.com/querywright/querywright/internal/catalog"
)

type goldenRecordCreateRequest struct {
	DBConnectionID string `json:"db_connection_id"`
	Question       string `json:"question"`
	SQLQuery       string `json:"sql_query"`
}

func (s *server) handleCreateGoldenRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GOLDEN_RECORDS_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request goldenRecordCreateRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid golden record request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.DBConnectionID) == "" || strings.TrimSpace(request.Question) == "" || strings.TrimSpace(request.SQLQuery) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "FIELDS_REQUIRED", "db_connection_id, question and sql_query are required", false, nil)
		return
	}
	if _, err := s.deps.Catalog.GetDatabaseConnection(r.Context(), request.DBConnectionID); err != nil {
		writeCatalogLookupError(w, r, err, "CONNECTION_NOT_FOUND", "database connection not found")
		return
	}

	record, err := s.deps.Catalog.CreateGoldenRecord(r.Context(), catalog.CreateGoldenRecordInput{
		DBConnectionID: request.DBConnectionID,
		Question:       strings.TrimSpace(request.Question),
		SQLQuery:       strings.TrimSpace(request.SQLQuery),
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to store golden record", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *server) handleListGoldenRecords(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GOLDEN_RECORDS_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	connectionID := strings.TrimSpace(r.URL.Query().Get("db_connection_id"))
	if connectionID == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CONNECTION_REQUIRED", "db_connection_id query parameter is required", false, nil)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer", false, nil)
			return
		}
		limit = parsed
	}

	records, err := s.deps.Catalog.ListGoldenRecords(r.Context(), connectionID, limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list golden records", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"db_connection_id": connectionID,
		"golden_records":   records,
	})
}

func (s *server) handleDeleteGoldenRecord(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "GOLDEN_RECORDS_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	id := r.PathValue("id")
	deleted, err := s.deps.Catalog.DeleteGoldenRecord(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to delete golden record", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "GOLDEN_RECORD_NOT_FOUND", "golden record not found", false, map[string]any{"id": id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
