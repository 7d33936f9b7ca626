package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/querywright/querywright/internal/catalog"
	"github.com/querywright/querywright/internal/nl2sql"
)

type Repository struct {
	db    *sql.DB
	newID func() string
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, newID: uuid.NewString}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateDatabaseConnection(ctx context.Context, in catalog.CreateDatabaseConnectionInput) (nl2sql.DatabaseConnection, error) {
	query := `
INSERT INTO database_connection (id, alias, encrypted_uri)
VALUES ($1, $2, $3)
RETURNING created_at`

	conn := nl2sql.DatabaseConnection{
		ID:           r.newID(),
		Alias:        in.Alias,
		EncryptedURI: in.EncryptedURI,
	}
	if err := r.db.QueryRowContext(ctx, query, conn.ID, conn.Alias, conn.EncryptedURI).Scan(&conn.CreatedAt); err != nil {
		return nl2sql.DatabaseConnection{}, fmt.Errorf("create database connection: %w", err)
	}
	return conn, nil
}

func (r *Repository) GetDatabaseConnection(ctx context.Context, id string) (nl2sql.DatabaseConnection, error) {
	query := `
SELECT id, alias, encrypted_uri, created_at
FROM database_connection
WHERE id = $1`

	var conn nl2sql.DatabaseConnection
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conn.ID,
		&conn.Alias,
		&conn.EncryptedURI,
		&conn.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nl2sql.DatabaseConnection{}, catalog.ErrNotFound
		}
		return nl2sql.DatabaseConnection{}, fmt.Errorf("get database connection: %w", err)
	}
	return conn, nil
}

func (r *Repository) ListDatabaseConnections(ctx context.Context) ([]nl2sql.DatabaseConnection, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, alias, encrypted_uri, created_at
FROM database_connection
ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("list database connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conns := make([]nl2sql.DatabaseConnection, 0)
	for rows.Next() {
		var conn nl2sql.DatabaseConnection
		if err := rows.Scan(&conn.ID, &conn.Alias, &conn.EncryptedURI, &conn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan database connection row: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate database connection rows: %w", err)
	}
	return conns, nil
}

func (r *Repository) CreateQuestion(ctx context.Context, in catalog.CreateQuestionInput) (nl2sql.Question, error) {
	query := `
INSERT INTO nl_question (id, db_connection_id, question)
VALUES ($1, $2, $3)
RETURNING created_at`

	question := nl2sql.Question{
		ID:             r.newID(),
		DBConnectionID: in.DBConnectionID,
		Text:           in.Text,
	}
	if err := r.db.QueryRowContext(ctx, query, question.ID, question.DBConnectionID, question.Text).Scan(&question.CreatedAt); err != nil {
		return nl2sql.Question{}, fmt.Errorf("create question: %w", err)
	}
	return question, nil
}

func (r *Repository) CreateQueryResponse(ctx context.Context, response nl2sql.QueryResponse) (nl2sql.QueryResponse, error) {
	var resultJSON []byte
	if response.SQLResult != nil {
		encoded, err := json.Marshal(response.SQLResult)
		if err != nil {
			return nl2sql.QueryResponse{}, fmt.Errorf("marshal sql result: %w", err)
		}
		resultJSON = encoded
	}
	if response.ID == "" {
		response.ID = r.newID()
	}

	query := `
INSERT INTO nl_query_response (id, question_id, sql_query, sql_generation_status, error_message, sql_query_result, nl_response, exec_time)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
RETURNING created_at`
	if err := r.db.QueryRowContext(ctx, query,
		response.ID,
		response.QuestionID,
		response.SQLQuery,
		response.Status,
		response.Error,
		nullableJSON(resultJSON),
		response.NLResponse,
		response.ExecTime,
	).Scan(&response.CreatedAt); err != nil {
		return nl2sql.QueryResponse{}, fmt.Errorf("create query response: %w", err)
	}
	return response, nil
}

func (r *Repository) GetQueryResponse(ctx context.Context, id string) (nl2sql.QueryResponse, error) {
	query := `
SELECT id, question_id, sql_query, sql_generation_status, error_message, sql_query_result, nl_response, exec_time, created_at
FROM nl_query_response
WHERE id = $1`

	var response nl2sql.QueryResponse
	var resultJSON []byte
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&response.ID,
		&response.QuestionID,
		&response.SQLQuery,
		&response.Status,
		&response.Error,
		&resultJSON,
		&response.NLResponse,
		&response.ExecTime,
		&response.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nl2sql.QueryResponse{}, catalog.ErrNotFound
		}
		return nl2sql.QueryResponse{}, fmt.Errorf("get query response: %w", err)
	}
	if len(resultJSON) > 0 {
		var result nl2sql.SQLResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nl2sql.QueryResponse{}, fmt.Errorf("decode sql result: %w", err)
		}
		response.SQLResult = &result
	}
	return response, nil
}

func (r *Repository) CreateGoldenRecord(ctx context.Context, in catalog.CreateGoldenRecordInput) (catalog.GoldenRecord, error) {
	query := `
INSERT INTO golden_record (id, db_connection_id, question, sql_query)
VALUES ($1, $2, $3, $4)
RETURNING created_at`

	record := catalog.GoldenRecord{
		ID:             r.newID(),
		DBConnectionID: in.DBConnectionID,
		Question:       in.Question,
		SQLQuery:       in.SQLQuery,
	}
	if err := r.db.QueryRowContext(ctx, query, record.ID, record.DBConnectionID, record.Question, record.SQLQuery).Scan(&record.CreatedAt); err != nil {
		return catalog.GoldenRecord{}, fmt.Errorf("create golden record: %w", err)
	}
	return record, nil
}

// ListGoldenRecords returns the newest records first; limit <= 0 returns all.
func (r *Repository) ListGoldenRecords(ctx context.Context, connectionID string, limit int) ([]catalog.GoldenRecord, error) {
	query := `
SELECT id, db_connection_id, question, sql_query, created_at
FROM golden_record
WHERE db_connection_id = $1
ORDER BY created_at DESC, id`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+`
LIMIT $2`, connectionID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("list golden records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]catalog.GoldenRecord, 0)
	for rows.Next() {
		var record catalog.GoldenRecord
		if err := rows.Scan(
			&record.ID,
			&record.DBConnectionID,
			&record.Question,
			&record.SQLQuery,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan golden record row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate golden record rows: %w", err)
	}
	return records, nil
}

func (r *Repository) DeleteGoldenRecord(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM golden_record WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete golden record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete golden record rows affected: %w", err)
	}
	return affected > 0, nil
}

func nullableJSON(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}
