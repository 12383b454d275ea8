// Package transactions reads the bank transactions table the assistant answers questions about.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTable is the name of the single table the assistant may query.
const DefaultTable = "all_transactions"

var (
	// ErrSourceNotFound means the configured database does not exist or cannot be reached.
	ErrSourceNotFound = errors.New("transactions source not found")
	// ErrNotReadOnly is returned for statements other than a single SELECT.
	ErrNotReadOnly = errors.New("only a single read-only SELECT statement is allowed")
	// ErrInvalidTable is returned for table names that are not plain identifiers.
	ErrInvalidTable = errors.New("invalid table name")
)

// Source gives read-only access to the transactions table.
type Source interface {
	// FetchRows returns up to limit rows of the table in storage order.
	FetchRows(ctx context.Context, limit int) (Rows, error)
	// Query runs a validated read-only statement.
	Query(ctx context.Context, query string) (Rows, error)
	// Dialect names the SQL dialect, e.g. "sqlite" or "postgresql".
	Dialect() string
	Table() string
	Close() error
}

// Unavailable stands in for a source that could not be opened. Every read
// fails with an error wrapping ErrSourceNotFound.
type Unavailable struct {
	TableName  string
	SQLDialect string
	Cause      error
}

func (u Unavailable) Err() error {
	switch {
	case u.Cause == nil:
		return ErrSourceNotFound
	case errors.Is(u.Cause, ErrSourceNotFound):
		return u.Cause
	default:
		return fmt.Errorf("%w: %v", ErrSourceNotFound, u.Cause)
	}
}

func (u Unavailable) FetchRows(context.Context, int) (Rows, error) { return Rows{}, u.Err() }
func (u Unavailable) Query(context.Context, string) (Rows, error)  { return Rows{}, u.Err() }
func (u Unavailable) Dialect() string                              { return u.SQLDialect }
func (u Unavailable) Close() error                                 { return nil }

func (u Unavailable) Table() string {
	if u.TableName == "" {
		return DefaultTable
	}
	return u.TableName
}

// Unreachable returns the open error of a placeholder source, or nil for a
// real one.
func Unreachable(s Source) error {
	switch u := s.(type) {
	case Unavailable:
		return u.Err()
	case *Unavailable:
		return u.Err()
	}
	return nil
}

// Rows is a materialized query result.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows.
func (r Rows) Len() int {
	return len(r.Values)
}

// Truncate keeps at most n rows and reports whether rows were dropped.
func (r Rows) Truncate(n int) (Rows, bool) {
	if n <= 0 || len(r.Values) <= n {
		return r, false
	}
	return Rows{Columns: r.Columns, Values: r.Values[:n]}, true
}

// Text renders the rows as a header line followed by one line per row,
// with values separated by " | ".
func (r Rows) Text() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(r.Columns, " | "))
	for _, row := range r.Values {
		sb.WriteString("\n")
		for i, v := range row {
			if i > 0 {
				sb.WriteString(" | ")
			}
			sb.WriteString(FormatValue(v))
		}
	}
	return sb.String()
}

// FormatValue renders a scanned database value as text.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format(time.DateOnly)
		}
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTable checks that name is a plain SQL identifier.
func ValidateTable(name string) error {
	if !identifier.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, name)
	}
	return nil
}

var forbiddenKeywords = map[string]struct{}{
	"INSERT": {}, "UPDATE": {}, "DELETE": {}, "DROP": {}, "ALTER": {},
	"CREATE": {}, "TRUNCATE": {}, "ATTACH": {}, "DETACH": {},
	"PRAGMA": {}, "VACUUM": {}, "GRANT": {}, "REVOKE": {}, "COPY": {},
	"MERGE": {}, "CALL": {}, "EXEC": {}, "EXECUTE": {}, "REINDEX": {},
}

// ValidateReadOnly checks that query is a single SELECT (or WITH ... SELECT)
// statement and returns it without trailing semicolons.
func ValidateReadOnly(query string) (string, error) {
	q := strings.TrimSpace(query)
	q = strings.TrimSpace(strings.TrimRight(q, "; \n\t"))
	if q == "" {
		return "", fmt.Errorf("%w: empty query", ErrNotReadOnly)
	}

	words, hasSemicolon := scanWords(q)
	if hasSemicolon {
		return "", fmt.Errorf("%w: multiple statements", ErrNotReadOnly)
	}
	if len(words) == 0 || (words[0] != "SELECT" && words[0] != "WITH") {
		return "", ErrNotReadOnly
	}
	for _, w := range words {
		if _, bad := forbiddenKeywords[w]; bad {
			return "", fmt.Errorf("%w: %s is not allowed", ErrNotReadOnly, w)
		}
	}
	return q, nil
}

// scanWords returns the upper-cased bare words of q outside string literals,
// quoted identifiers and comments, and whether a statement separator occurs.
func scanWords(q string) ([]string, bool) {
	var (
		words     []string
		current   strings.Builder
		semicolon bool
	)
	flush := func() {
		if current.Len() > 0 {
			words = append(words, strings.ToUpper(current.String()))
			current.Reset()
		}
	}

	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			flush()
			for i++; i < len(q) && q[i] != c; i++ {
			}
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			flush()
			for ; i < len(q) && q[i] != '\n'; i++ {
			}
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			flush()
			end := strings.Index(q[i+2:], "*/")
			if end < 0 {
				i = len(q)
			} else {
				i += end + 3
			}
		case c == ';':
			flush()
			semicolon = true
		case c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			current.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return words, semicolon
}
