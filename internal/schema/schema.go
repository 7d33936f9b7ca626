// Package schema renders a target database's table structure as prompt text.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/querywright/querywright/internal/query"
)

const noTables = "(no tables found)"

type Table struct {
	Name       string
	Columns    []Column
	SampleRows [][]string
}

type Column struct {
	Name     string
	Type     string
	Nullable bool
	IsPK     bool
}

// Introspector reads information_schema. SampleRows > 0 appends that many
// example rows per table.
type Introspector struct {
	SampleRows int
}

func NewIntrospector(sampleRows int) *Introspector {
	return &Introspector{SampleRows: sampleRows}
}

func (i *Introspector) Describe(ctx context.Context, db *sql.DB, dialect string) (string, error) {
	tables, err := i.LoadTables(ctx, db, dialect)
	if err != nil {
		return "", err
	}
	return Render(tables), nil
}

func (i *Introspector) LoadTables(ctx context.Context, db *sql.DB, dialect string) ([]Table, error) {
	schemaName, err := schemaFor(dialect)
	if err != nil {
		return nil, err
	}
	columns, order, err := loadColumns(ctx, db, schemaName)
	if err != nil {
		return nil, fmt.Errorf("load columns: %w", err)
	}
	primaryKeys, err := loadPrimaryKeys(ctx, db, schemaName)
	if err != nil {
		return nil, fmt.Errorf("load primary keys: %w", err)
	}

	tables := make([]Table, 0, len(order))
	for _, name := range order {
		table := Table{Name: name, Columns: columns[name]}
		for idx := range table.Columns {
			table.Columns[idx].IsPK = primaryKeys[name][table.Columns[idx].Name]
		}
		if i.SampleRows > 0 {
			samples, err := loadSampleRows(ctx, db, name, i.SampleRows)
			if err != nil {
				return nil, fmt.Errorf("sample rows from %q: %w", name, err)
			}
			table.SampleRows = samples
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func schemaFor(dialect string) (string, error) {
	switch dialect {
	case query.DialectPostgres:
		return "public", nil
	case query.DialectDuckDB:
		return "main", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialect)
	}
}

// Render writes one CREATE TABLE block per table, followed by sample rows
// when present.
func Render(tables []Table) string {
	blocks := make([]string, 0, len(tables))
	for _, table := range tables {
		if len(table.Columns) == 0 {
			continue
		}
		blocks = append(blocks, renderTable(table))
	}
	if len(blocks) == 0 {
		return noTables
	}
	return strings.Join(blocks, "\n\n")
}

func renderTable(t Table) string {
	lines := make([]string, 0, len(t.Columns)+1)
	primaryKey := make([]string, 0)
	for _, col := range t.Columns {
		line := fmt.Sprintf("\t%s %s", quoteIdent(col.Name), col.Type)
		if !col.Nullable {
			line += " NOT NULL"
		}
		lines = append(lines, line)
		if col.IsPK {
			primaryKey = append(primaryKey, quoteIdent(col.Name))
		}
	}
	if len(primaryKey) > 0 {
		lines = append(lines, fmt.Sprintf("\tPRIMARY KEY (%s)", strings.Join(primaryKey, ", ")))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "CREATE TABLE %s (\n%s\n)", quoteIdent(t.Name), strings.Join(lines, ",\n"))
	if len(t.SampleRows) > 0 {
		names := make([]string, 0, len(t.Columns))
		for _, col := range t.Columns {
			names = append(names, col.Name)
		}
		fmt.Fprintf(&sb, "\n\n/*\n%d rows from %s table:\n%s", len(t.SampleRows), t.Name, strings.Join(names, "\t"))
		for _, row := range t.SampleRows {
			sb.WriteString("\n" + strings.Join(row, "\t"))
		}
		sb.WriteString("\n*/")
	}
	return sb.String()
}

func loadColumns(ctx context.Context, db *sql.DB, schemaName string) (map[string][]Column, []string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name, column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_catalog = current_database()
		ORDER BY table_name, ordinal_position`, schemaName)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = rows.Close() }()

	columns := make(map[string][]Column)
	order := make([]string, 0)
	for rows.Next() {
		var tableName string
		var col Column
		if err := rows.Scan(&tableName, &col.Name, &col.Type, &col.Nullable); err != nil {
			return nil, nil, err
		}
		if _, seen := columns[tableName]; !seen {
			order = append(order, tableName)
		}
		columns[tableName] = append(columns[tableName], col)
	}
	return columns, order, rows.Err()
}

func loadPrimaryKeys(ctx context.Context, db *sql.DB, schemaName string) (map[string]map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tc.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = $1
		  AND tc.table_catalog = current_database()`, schemaName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[string]map[string]bool)
	for rows.Next() {
		var tableName, columnName string
		if err := rows.Scan(&tableName, &columnName); err != nil {
			return nil, err
		}
		if keys[tableName] == nil {
			keys[tableName] = make(map[string]bool)
		}
		keys[tableName][columnName] = true
	}
	return keys, rows.Err()
}

func loadSampleRows(ctx context.Context, db *sql.DB, table string, limit int) ([][]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(table), limit))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	samples := make([][]string, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		row := make([]string, len(values))
		for i, value := range values {
			row[i] = formatSample(value)
		}
		samples = append(samples, row)
	}
	return samples, rows.Err()
}

func formatSample(value any) string {
	switch typed := value.(type) {
	case nil:
		return "None"
	case []byte:
		return truncate(string(typed))
	default:
		return truncate(fmt.Sprint(typed))
	}
}

// truncate keeps the first maxSampleLen characters, never splitting a rune.
func truncate(value string) string {
	const maxSampleLen = 100
	if len(value) <= maxSampleLen {
		return value
	}
	count := 0
	for i := range value {
		if count == maxSampleLen {
			return value[:i]
		}
		count++
	}
	return value
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
