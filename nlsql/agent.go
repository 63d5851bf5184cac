// Package nlsql translates natural-language questions into SQL against the
// retail database and phrases the result rows as an answer.
package nlsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/merchantry/askdb/common/logger"
	"github.com/merchantry/askdb/llm"
	"github.com/merchantry/askdb/schema"
)

const maxRows = 50

const systemPrompt = `You translate questions about a retail database into SQL.
Rules:
- Respond with exactly one SQLite SELECT statement and nothing else.
- Never modify data. No INSERT, UPDATE, DELETE, DROP, or PRAGMA.
- Prefer explicit column lists over SELECT *.
- Add a LIMIT clause when the question does not bound the result.

The database schema:

%s`

// Result is the SQL agent's answer for one question.
type Result struct {
	Answer string
	SQL    string
	Rows   int
}

// Agent drafts SQL with the generator, executes it read-only, and retries
// once with the database error when the first draft fails.
type Agent struct {
	db  *sql.DB
	gen llm.Generator

	schemaOnce sync.Once
	schemaText string
	schemaErr  error
}

// NewAgent builds an agent over db and gen.
func NewAgent(db *sql.DB, gen llm.Generator) *Agent {
	return &Agent{db: db, gen: gen}
}

// Answer resolves question against the database.
func (a *Agent) Answer(ctx context.Context, question string) (*Result, error) {
	schemaText, err := a.schemaDescription(ctx)
	if err != nil {
		return nil, err
	}
	system := fmt.Sprintf(systemPrompt, schemaText)

	query, err := a.draft(ctx, system, question)
	if err != nil {
		return nil, err
	}

	rows, execErr := a.execute(ctx, query)
	if execErr != nil {
		logger.Warnf("sql draft failed, retrying with error feedback: %v", execErr)
		retryPrompt := fmt.Sprintf(
			"%s\n\nYour previous query was:\n%s\n\nIt failed with this error:\n%s\n\nRespond with a corrected SQLite SELECT statement and nothing else.",
			question, query, execErr)
		query, err = a.draft(ctx, system, retryPrompt)
		if err != nil {
			return nil, err
		}
		rows, execErr = a.execute(ctx, query)
		if execErr != nil {
			return nil, schema.NewCollaboratorError("sql_agent", execErr)
		}
	}

	return &Result{
		Answer: phrase(rows),
		SQL:    query,
		Rows:   len(rows.values),
	}, nil
}

func (a *Agent) draft(ctx context.Context, system, prompt string) (string, error) {
	raw, err := a.gen.Generate(ctx, system, prompt)
	if err != nil {
		return "", err
	}
	query := cleanSQL(raw)
	if query == "" {
		return "", schema.NewCollaboratorError("sql_agent", fmt.Errorf("model returned no query"))
	}
	if !isReadOnly(query) {
		return "", schema.NewCollaboratorError("sql_agent", fmt.Errorf("refusing non-SELECT statement: %s", query))
	}
	return query, nil
}

type resultRows struct {
	columns []string
	values  [][]string
}

func (a *Agent) execute(ctx context.Context, query string) (*resultRows, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &resultRows{columns: columns}
	raw := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() && len(out.values) < maxRows {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		record := make([]string, len(columns))
		for i, v := range raw {
			if v.Valid {
				record[i] = v.String
			} else {
				record[i] = "NULL"
			}
		}
		out.values = append(out.values, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// schemaDescription introspects the SQLite schema once and caches the text.
func (a *Agent) schemaDescription(ctx context.Context) (string, error) {
	a.schemaOnce.Do(func() {
		rows, err := a.db.QueryContext(ctx,
			`SELECT sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
		if err != nil {
			a.schemaErr = schema.NewCollaboratorError("sql_agent", err)
			return
		}
		defer rows.Close()

		var ddl []string
		for rows.Next() {
			var stmt sql.NullString
			if err := rows.Scan(&stmt); err != nil {
				a.schemaErr = schema.NewCollaboratorError("sql_agent", err)
				return
			}
			if stmt.Valid {
				ddl = append(ddl, stmt.String)
			}
		}
		if err := rows.Err(); err != nil {
			a.schemaErr = schema.NewCollaboratorError("sql_agent", err)
			return
		}
		a.schemaText = strings.Join(ddl, ";\n\n")
	})
	return a.schemaText, a.schemaErr
}

// cleanSQL strips markdown fences and surrounding noise from a model reply.
func cleanSQL(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```sql")
		s = strings.TrimPrefix(s, "```sqlite")
		s = strings.TrimPrefix(s, "```")
		if i := strings.Index(s, "```"); i >= 0 {
			s = s[:i]
		}
	}
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}

// isReadOnly accepts a bare SELECT, or a WITH whose final statement is a
// SELECT. SQLite permits WITH-prefixed writes (WITH x AS (...) DELETE ...),
// so a prefix check alone is not enough.
func isReadOnly(query string) bool {
	return statementVerb(query) == "SELECT"
}

// statementVerb scans for the first statement keyword at parenthesis depth
// zero. CTE bodies sit inside parentheses, so for a WITH statement the first
// depth-zero keyword past the CTE list is the verb that actually executes.
func statementVerb(query string) string {
	var word strings.Builder
	depth := 0
	var quote rune

	check := func() string {
		w := strings.ToUpper(word.String())
		word.Reset()
		switch w {
		case "SELECT", "VALUES", "INSERT", "UPDATE", "DELETE", "REPLACE",
			"DROP", "ALTER", "CREATE", "PRAGMA", "ATTACH", "DETACH", "VACUUM", "REINDEX":
			return w
		}
		return ""
	}

	for _, r := range query {
		if quote != 0 {
			if r == quote {
				quote = 0
			}
			continue
		}
		if depth == 0 && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			word.WriteRune(r)
			continue
		}
		// Word boundary.
		if depth == 0 {
			if v := check(); v != "" {
				return v
			}
		}
		word.Reset()
		switch r {
		case '\'', '"', '`':
			quote = r
		case '(':
			depth++
		case ')':
			depth--
		}
	}
	return check()
}

// phrase renders result rows as a short natural answer.
func phrase(rows *resultRows) string {
	switch {
	case len(rows.values) == 0:
		return "The query returned no results."
	case len(rows.values) == 1 && len(rows.columns) == 1:
		return fmt.Sprintf("The answer is %s.", rows.values[0][0])
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(rows.values))
	for _, record := range rows.values {
		b.WriteString("- ")
		if len(rows.columns) == 1 {
			b.WriteString(record[0])
		} else {
			parts := make([]string, len(record))
			for i, v := range record {
				parts[i] = fmt.Sprintf("%s: %s", rows.columns[i], v)
			}
			b.WriteString(strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
