package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/querywright/querywright/internal/auth"
	"github.com/querywright/querywright/internal/catalog"
	"github.com/querywright/querywright/internal/query"
)

type connectionCreateRequest struct {
	Alias         string `json:"alias"`
	ConnectionURI string `json:"connection_uri"`
}

type connectionItem struct {
	ID        string    `json:"id"`
	Alias     string    `json:"alias"`
	Dialect   string    `json:"dialect,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil || s.deps.Credentials == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONNECTIONS_NOT_CONFIGURED", "connection dependencies are not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request connectionCreateRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid connection request body", false, map[string]any{"details": err.Error()})
		return
	}
	request.Alias = strings.TrimSpace(request.Alias)
	if request.Alias == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "ALIAS_REQUIRED", "alias is required", false, nil)
		return
	}
	target, err := query.ParseURI(request.ConnectionURI)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION_URI", err.Error(), false, nil)
		return
	}

	token, err := s.deps.Credentials.Encrypt(strings.TrimSpace(request.ConnectionURI))
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "ENCRYPTION_FAILED", "failed to encrypt connection uri", false, nil)
		return
	}
	conn, err := s.deps.Catalog.CreateDatabaseConnection(r.Context(), catalog.CreateDatabaseConnectionInput{
		Alias:        request.Alias,
		EncryptedURI: token,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to store connection", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, connectionItem{
		ID:        conn.ID,
		Alias:     conn.Alias,
		Dialect:   target.Dialect,
		CreatedAt: conn.CreatedAt,
	})
}

func (s *server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CONNECTIONS_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	if err := requireAnyRole(r, auth.RoleQueryReader, auth.RoleQueryWriter, auth.RoleConnectionAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	conns, err := s.deps.Catalog.ListDatabaseConnections(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list connections", true, map[string]any{"details": err.Error()})
		return
	}
	items := make([]connectionItem, 0, len(conns))
	for _, conn := range conns {
		items = append(items, connectionItem{
			ID:        conn.ID,
			Alias:     conn.Alias,
			CreatedAt: conn.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": items})
}

func writeCatalogLookupError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	if errors.Is(err, catalog.ErrNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, code, message, false, nil)
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "catalog lookup failed", true, map[string]any{"details": err.Error()})
}
