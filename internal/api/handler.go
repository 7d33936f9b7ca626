package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querywright/querywright/internal/archive"
	"github.com/querywright/querywright/internal/auth"
	"github.com/querywright/querywright/internal/catalog"
	"github.com/querywright/querywright/internal/config"
	"github.com/querywright/querywright/internal/nl2sql"
	"github.com/querywright/querywright/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

type GeneratorLookup interface {
	Get(name string) (nl2sql.Generator, error)
}

type URIEncryptor interface {
	Encrypt(uri string) (string, error)
}

// DatasetStore exports golden records and serves the exported files.
type DatasetStore interface {
	ExportGoldenRecords(ctx context.Context, connectionID string, records []catalog.GoldenRecord) (archive.ExportResult, error)
	ListDatasets(ctx context.Context, connectionID string) ([]archive.DatasetInfo, error)
	OpenDataset(ctx context.Context, connectionID, name string) (io.ReadCloser, archive.DatasetInfo, error)
	DeleteDataset(ctx context.Context, connectionID, name string) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           catalog.Repository
	Generators        GeneratorLookup
	Credentials       URIEncryptor
	Datasets          DatasetStore
}

type server struct {
	cfg  config.Config
	deps Dependencies
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	deps.Logger = observability.LoggerOrDiscard(deps.Logger)
	s := &server{cfg: cfg, deps: deps}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/database-connections", s.handleCreateConnection)
	protected.HandleFunc("GET /v1/database-connections", s.handleListConnections)
	protected.HandleFunc("POST /v1/golden-records", s.handleCreateGoldenRecord)
	protected.HandleFunc("GET /v1/golden-records", s.handleListGoldenRecords)
	protected.HandleFunc("DELETE /v1/golden-records/{id}", s.handleDeleteGoldenRecord)
	protected.HandleFunc("POST /v1/golden-records/export", s.handleExportGoldenRecords)
	protected.HandleFunc("GET /v1/golden-records/exports", s.handleListDatasets)
	protected.HandleFunc("GET /v1/golden-records/exports/{connection_id}/{name}", s.handleDownloadDataset)
	protected.HandleFunc("DELETE /v1/golden-records/exports/{connection_id}/{name}", s.handleDeleteDataset)
	protected.HandleFunc("POST /v1/questions", s.handleAskQuestion)
	protected.HandleFunc("GET /v1/responses/{id}", s.handleGetResponse)

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			deps.Logger.Error("auth required but auth middleware missing")
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("/v1/database-connections", protectedHandler)
	mux.Handle("/v1/golden-records", protectedHandler)
	mux.Handle("/v1/golden-records/", protectedHandler)
	mux.Handle("/v1/questions", protectedHandler)
	mux.Handle("/v1/responses/", protectedHandler)

	return chain(mux,
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
		observability.LoggingMiddleware(deps.Logger),
	)
}

func CheckCatalog(repo catalog.Repository) ReadinessCheck {
	return func(ctx context.Context) error {
		if repo == nil {
			return errors.New("catalog is not configured")
		}
		if err := repo.HealthCheck(ctx); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		return nil
	}
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func CheckObjectStore(store healthChecker) ReadinessCheck {
	return func(ctx context.Context) error {
		if err := store.HealthCheck(ctx); err != nil {
			return fmt.Errorf("object store: %w", err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func requireAnyRole(r *http.Request, roles ...string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasAnyRole(roles...) {
		return nil
	}
	return fmt.Errorf("missing required role, one of %q", roles)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
