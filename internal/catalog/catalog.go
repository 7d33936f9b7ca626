package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/querywright/querywright/internal/nl2sql"
)

var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateDatabaseConnection(ctx context.Context, in CreateDatabaseConnectionInput) (nl2sql.DatabaseConnection, error)
	GetDatabaseConnection(ctx context.Context, id string) (nl2sql.DatabaseConnection, error)
	ListDatabaseConnections(ctx context.Context) ([]nl2sql.DatabaseConnection, error)
	CreateQuestion(ctx context.Context, in CreateQuestionInput) (nl2sql.Question, error)
	CreateQueryResponse(ctx context.Context, response nl2sql.QueryResponse) (nl2sql.QueryResponse, error)
	GetQueryResponse(ctx context.Context, id string) (nl2sql.QueryResponse, error)
	CreateGoldenRecord(ctx context.Context, in CreateGoldenRecordInput) (GoldenRecord, error)
	ListGoldenRecords(ctx context.Context, connectionID string, limit int) ([]GoldenRecord, error)
	DeleteGoldenRecord(ctx context.Context, id string) (bool, error)
}

type CreateDatabaseConnectionInput struct {
	Alias        string
	EncryptedURI string
}

type CreateQuestionInput struct {
	DBConnectionID string
	Text           string
}

type CreateGoldenRecordInput struct {
	DBConnectionID string
	Question       string
	SQLQuery       string
}

// GoldenRecord is a verified question and SQL pair for one connection.
type GoldenRecord struct {
	ID             string    `json:"id"`
	DBConnectionID string    `json:"db_connection_id"`
	Question       string    `json:"question"`
	SQLQuery       string    `json:"sql_query"`
	CreatedAt      time.Time `json:"created_at"`
}

// Examples converts golden records into prompt examples. The result is never
// nil so callers that asked for context always get the context lead-in.
func Examples(records []GoldenRecord) []nl2sql.ContextExample {
	examples := make([]nl2sql.ContextExample, 0, len(records))
	for _, record := range records {
		examples = append(examples, nl2sql.ContextExample{Question: record.Question, SQL: record.SQLQuery})
	}
	return examples
}
