package nl2sql

import (
	"context"
	"time"
)

const (
	StatusValid       = "VALID"
	StatusInvalid     = "INVALID"
	StatusNotExecuted = "NOT_EXECUTED"
)

type Question struct {
	ID             string    `json:"id"`
	DBConnectionID string    `json:"db_connection_id"`
	Text           string    `json:"question"`
	CreatedAt      time.Time `json:"created_at"`
}

// DatabaseConnection carries the connection URI only in encrypted form.
type DatabaseConnection struct {
	ID           string    `json:"id"`
	Alias        string    `json:"alias"`
	EncryptedURI string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ContextExample is a prior question and the SQL that answered it. A nil
// slice of examples means no context; an empty non-nil slice still marks
// the prompt as carrying context.
type ContextExample struct {
	Question string `json:"nl_question"`
	SQL      string `json:"sql_query"`
}

type Prompt struct {
	System string
	User   string
}

type SQLResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type QueryResponse struct {
	ID         string     `json:"id"`
	QuestionID string     `json:"question_id"`
	SQLQuery   string     `json:"sql_query"`
	Status     string     `json:"sql_generation_status"`
	Error      string     `json:"error_message,omitempty"`
	SQLResult  *SQLResult `json:"sql_query_result,omitempty"`
	NLResponse string     `json:"nl_response,omitempty"`
	ExecTime   float64    `json:"exec_time"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Generator is one strategy for turning a question into SQL.
type Generator interface {
	Name() string
	GenerateResponse(ctx context.Context, question Question, conn DatabaseConnection, examples []ContextExample) (QueryResponse, error)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
}

// Completer sends one chat-completion request and returns the first
// choice's message content.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// GenerationRecord captures everything that went into and came out of one
// generation, for archiving.
type GenerationRecord struct {
	QuestionID     string           `json:"question_id"`
	DBConnectionID string           `json:"db_connection_id"`
	Question       string           `json:"question"`
	Strategy       string           `json:"strategy"`
	Model          string           `json:"model"`
	Dialect        string           `json:"dialect"`
	Examples       []ContextExample `json:"examples,omitempty"`
	SystemPrompt   string           `json:"system_prompt"`
	UserPrompt     string           `json:"user_prompt"`
	RawOutput      string           `json:"raw_output"`
	SQLQuery       string           `json:"sql_query"`
	Attempts       int              `json:"attempts"`
	GeneratedAt    time.Time        `json:"generated_at"`
}
