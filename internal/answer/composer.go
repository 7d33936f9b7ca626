package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/querywright/querywright/internal/nl2sql"
	"github.com/querywright/querywright/internal/observability"
	"github.com/querywright/querywright/internal/query"
)

const nlAnswerSystemPrompt = "You are a data analyst. Answer the user's question in one or two sentences " +
	"using only the SQL query and its result rows. If the result is empty, say so."

// maxAnswerRows caps how many result rows are shown to the answer model.
const maxAnswerRows = 20

type Config struct {
	RowLimit         int
	ExecutionTimeout time.Duration
	NLAnswerModel    string
}

// ExecutingComposer runs generated SQL against the target database and
// records the outcome on the response. Execution failures mark the response
// INVALID rather than failing the request.
type ExecutingComposer struct {
	engine   query.Engine
	cfg      Config
	answerer nl2sql.Completer
	logger   *slog.Logger
}

// NewExecutingComposer builds a composer; answerer may be nil to skip the
// natural-language answer.
func NewExecutingComposer(engine query.Engine, cfg Config, answerer nl2sql.Completer, logger *slog.Logger) *ExecutingComposer {
	if engine == nil {
		engine = query.NewExecutor()
	}
	return &ExecutingComposer{
		engine:   engine,
		cfg:      cfg,
		answerer: answerer,
		logger:   observability.LoggerOrDiscard(logger),
	}
}

func (c *ExecutingComposer) Compose(ctx context.Context, handle *query.Handle, question nl2sql.Question, response nl2sql.QueryResponse) (nl2sql.QueryResponse, error) {
	if strings.TrimSpace(response.SQLQuery) == "" {
		return invalid(response, "model returned empty SQL"), nil
	}
	if !query.IsReadOnly(response.SQLQuery) {
		return invalid(response, "only read-only SELECT/WITH queries are executed"), nil
	}
	if handle == nil || handle.DB == nil {
		return nl2sql.QueryResponse{}, fmt.Errorf("database handle is required")
	}

	execCtx := ctx
	if c.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, c.cfg.ExecutionTimeout)
		defer cancel()
	}

	result, err := c.engine.Execute(execCtx, handle.DB, query.Request{SQL: response.SQLQuery, RowLimit: c.cfg.RowLimit})
	if err != nil {
		c.logger.InfoContext(ctx, "generated sql failed to execute",
			observability.TraceAttr(ctx),
			slog.String("question_id", question.ID),
			slog.String("error", err.Error()),
		)
		return invalid(response, err.Error()), nil
	}
	observability.ObserveSQLExecution(result.Duration)

	response.Status = nl2sql.StatusValid
	response.Error = ""
	response.ExecTime = result.Duration.Seconds()
	response.SQLResult = &nl2sql.SQLResult{Columns: result.Columns, Rows: result.Rows}

	if c.answerer == nil {
		return response, nil
	}
	answer, err := c.answer(ctx, question, response)
	if err != nil {
		return nl2sql.QueryResponse{}, fmt.Errorf("generate nl answer: %w", err)
	}
	response.NLResponse = answer
	return response, nil
}

func (c *ExecutingComposer) answer(ctx context.Context, question nl2sql.Question, response nl2sql.QueryResponse) (string, error) {
	rows := response.SQLResult.Rows
	if len(rows) > maxAnswerRows {
		rows = rows[:maxAnswerRows]
	}
	encoded, err := json.Marshal(map[string]any{"columns": response.SQLResult.Columns, "rows": rows})
	if err != nil {
		return "", fmt.Errorf("marshal sql result: %w", err)
	}
	user := fmt.Sprintf("Question: %s\nSQL query: %s\nSQL result: %s", question.Text, response.SQLQuery, encoded)

	content, err := c.answerer.Complete(ctx, nl2sql.CompletionRequest{
		Model:    c.cfg.NLAnswerModel,
		Messages: nl2sql.Prompt{System: nlAnswerSystemPrompt, User: user}.Messages(),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func invalid(response nl2sql.QueryResponse, message string) nl2sql.QueryResponse {
	response.Status = nl2sql.StatusInvalid
	response.Error = message
	response.SQLResult = nil
	return response
}

// PassthroughComposer returns generated responses without executing them.
type PassthroughComposer struct{}

func (PassthroughComposer) Compose(_ context.Context, _ *query.Handle, _ nl2sql.Question, response nl2sql.QueryResponse) (nl2sql.QueryResponse, error) {
	return response, nil
}
