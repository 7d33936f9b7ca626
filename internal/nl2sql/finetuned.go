package nl2sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/querywright/querywright/internal/observability"
	"github.com/querywright/querywright/internal/query"
)

const StrategyFineTunedGPT = "fine_tuned_gpt"

type CredentialResolver interface {
	Decrypt(token string) (string, error)
}

type OpenFunc func(ctx context.Context, uri string) (*query.Handle, error)

type SchemaProvider interface {
	Describe(ctx context.Context, db *sql.DB, dialect string) (string, error)
}

// Composer finalizes a response while the target database is still open.
type Composer interface {
	Compose(ctx context.Context, handle *query.Handle, question Question, response QueryResponse) (QueryResponse, error)
}

type Archiver interface {
	ArchiveGeneration(ctx context.Context, record GenerationRecord) error
}

type FineTunedConfig struct {
	Model       string
	Temperature float64
	Retry       RetryPolicy
}

type FineTunedDependencies struct {
	Credentials CredentialResolver
	Open        OpenFunc
	Schema      SchemaProvider
	Completer   Completer
	Composer    Composer
	Archiver    Archiver
	Logger      *slog.Logger
}

type FineTunedGenerator struct {
	model       string
	credentials CredentialResolver
	open        OpenFunc
	schema      SchemaProvider
	loop        *CompletionLoop
	composer    Composer
	archiver    Archiver
	logger      *slog.Logger
	now         func() time.Time
}

func NewFineTunedGenerator(cfg FineTunedConfig, deps FineTunedDependencies) (*FineTunedGenerator, error) {
	if deps.Credentials == nil {
		return nil, errors.New("credential resolver is required")
	}
	if deps.Schema == nil {
		return nil, errors.New("schema provider is required")
	}
	if deps.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if deps.Composer == nil {
		return nil, errors.New("answer composer is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	open := deps.Open
	if open == nil {
		open = query.Open
	}
	logger := observability.LoggerOrDiscard(deps.Logger).With(slog.String("strategy", StrategyFineTunedGPT))

	return &FineTunedGenerator{
		model:       cfg.Model,
		credentials: deps.Credentials,
		open:        open,
		schema:      deps.Schema,
		loop:        NewCompletionLoop(deps.Completer, cfg.Model, cfg.Temperature, cfg.Retry, logger),
		composer:    deps.Composer,
		archiver:    deps.Archiver,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (g *FineTunedGenerator) Name() string {
	return StrategyFineTunedGPT
}

func (g *FineTunedGenerator) GenerateResponse(ctx context.Context, question Question, conn DatabaseConnection, examples []ContextExample) (response QueryResponse, err error) {
	start := g.now()
	defer func() {
		observability.ObserveGeneration(StrategyFineTunedGPT, err, time.Since(start))
	}()

	uri, err := g.credentials.Decrypt(conn.EncryptedURI)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("resolve connection %q: %w", conn.ID, err)
	}

	handle, err := g.open(ctx, uri)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("open connection %q: %w", conn.ID, err)
	}
	defer func() { _ = handle.Close() }()

	content, err := g.schema.Describe(ctx, handle.DB, handle.Dialect)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("describe schema: %w", err)
	}

	prompt := BuildPrompt(handle.Dialect, content, question.Text, examples)
	completion, err := g.loop.Run(ctx, prompt)
	if err != nil {
		return QueryResponse{}, err
	}
	sqlQuery := ParseSQL(completion.Content)

	g.logger.InfoContext(ctx, "sql generated",
		observability.TraceAttr(ctx),
		slog.String("question_id", question.ID),
		slog.String("db_connection_id", conn.ID),
		slog.String("dialect", handle.Dialect),
		slog.Int("attempts", completion.Attempts),
	)
	g.archive(ctx, GenerationRecord{
		QuestionID:     question.ID,
		DBConnectionID: conn.ID,
		Question:       question.Text,
		Strategy:       StrategyFineTunedGPT,
		Model:          g.model,
		Dialect:        handle.Dialect,
		Examples:       examples,
		SystemPrompt:   prompt.System,
		UserPrompt:     prompt.User,
		RawOutput:      completion.Content,
		SQLQuery:       sqlQuery,
		Attempts:       completion.Attempts,
		GeneratedAt:    g.now().UTC(),
	})

	response = QueryResponse{
		QuestionID: question.ID,
		SQLQuery:   sqlQuery,
		Status:     StatusNotExecuted,
		CreatedAt:  g.now().UTC(),
	}
	return g.composer.Compose(ctx, handle, question, response)
}

func (g *FineTunedGenerator) archive(ctx context.Context, record GenerationRecord) {
	if g.archiver == nil {
		return
	}
	if err := g.archiver.ArchiveGeneration(ctx, record); err != nil {
		observability.IncrementArchiveFailure()
		g.logger.WarnContext(ctx, "archive generation failed",
			observability.TraceAttr(ctx),
			slog.String("question_id", record.QuestionID),
			slog.String("error", err.Error()),
		)
	}
}
