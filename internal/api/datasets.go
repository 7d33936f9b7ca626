package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/querywright/querywright/internal/archive"
	"github.com/querywright/querywright/internal/auth"
	"github.com/querywright/querywright/internal/observability"
	"github.com/querywright/querywright/internal/storage"
)

type goldenRecordExportRequest struct {
	DBConnectionID string `json:"db_connection_id"`
}

func (s *server) handleExportGoldenRecords(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil || s.deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "dataset export requires the archive to be enabled", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request goldenRecordExportRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid export request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.DBConnectionID) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "CONNECTION_REQUIRED", "db_connection_id is required", false, nil)
		return
	}
	if _, err := s.deps.Catalog.GetDatabaseConnection(r.Context(), request.DBConnectionID); err != nil {
		writeCatalogLookupError(w, r, err, "CONNECTION_NOT_FOUND", "database connection not found")
		return
	}

	records, err := s.deps.Catalog.ListGoldenRecords(r.Context(), request.DBConnectionID, 0)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list golden records", true, map[string]any{"details": err.Error()})
		return
	}
	result, err := s.deps.Datasets.ExportGoldenRecords(r.Context(), request.DBConnectionID, records)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export golden records", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "dataset export requires the archive to be enabled", false, nil)
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

	datasets, err := s.deps.Datasets.ListDatasets(r.Context(), connectionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_ERROR", "failed to list datasets", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"db_connection_id": connectionID,
		"datasets":         datasets,
	})
}

func (s *server) handleDownloadDataset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "dataset export requires the archive to be enabled", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	name := r.PathValue("name")
	body, info, err := s.deps.Datasets.OpenDataset(r.Context(), r.PathValue("connection_id"), name)
	if err != nil {
		writeDatasetError(w, r, err, name)
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", storage.ContentTypeParquet)
	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Name+`"`)
	if info.Bytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Bytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.deps.Logger.WarnContext(r.Context(), "dataset download interrupted",
			observability.TraceAttr(r.Context()),
			slog.String("key", info.Key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Datasets == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "dataset export requires the archive to be enabled", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	name := r.PathValue("name")
	if err := s.deps.Datasets.DeleteDataset(r.Context(), r.PathValue("connection_id"), name); err != nil {
		writeDatasetError(w, r, err, name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeDatasetError(w http.ResponseWriter, r *http.Request, err error, name string) {
	if errors.Is(err, archive.ErrDatasetNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset not found", false, map[string]any{"name": name})
		return
	}
	writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_ERROR", "dataset storage failed", true, map[string]any{"details": err.Error()})
}
