package transactions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestValidateReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
		ok    bool
	}{
		{name: "plain select", query: "SELECT * FROM all_transactions LIMIT 5", want: "SELECT * FROM all_transactions LIMIT 5", ok: true},
		{name: "trailing semicolon", query: " select amount from all_transactions; ", want: "select amount from all_transactions", ok: true},
		{name: "cte", query: "WITH x AS (SELECT amount FROM all_transactions) SELECT SUM(amount) FROM x", ok: true},
		{name: "keyword inside literal", query: "SELECT * FROM all_transactions WHERE remittance_info_unstructured LIKE '%DELETE%'", ok: true},
		{name: "column containing keyword", query: "SELECT updated_at FROM all_transactions", ok: true},
		{name: "replace function", query: "SELECT REPLACE(creditor_name, 'A', 'B') FROM all_transactions", ok: true},
		{name: "empty", query: "  ; ", ok: false},
		{name: "update", query: "UPDATE all_transactions SET amount = 0", ok: false},
		{name: "stacked statements", query: "SELECT 1; DROP TABLE all_transactions", ok: false},
		{name: "cte with delete", query: "WITH x AS (DELETE FROM all_transactions RETURNING *) SELECT * FROM x", ok: false},
		{name: "pragma", query: "PRAGMA table_info(all_transactions)", ok: false},
		{name: "comment hides nothing", query: "SELECT 1 -- ; DROP TABLE x", ok: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateReadOnly(tc.query)
			if tc.ok && err != nil {
				t.Fatalf("ValidateReadOnly(%q) error = %v", tc.query, err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrNotReadOnly) {
					t.Fatalf("ValidateReadOnly(%q) expected ErrNotReadOnly, got %v", tc.query, err)
				}
				return
			}
			if tc.want != "" && got != tc.want {
				t.Fatalf("ValidateReadOnly(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestRowsText(t *testing.T) {
	rows := Rows{
		Columns: []string{"id", "booking_date", "amount", "creditor_name"},
		Values: [][]any{
			{int64(1), "2025-04-30", -12.5, []byte("Biedronka")},
			{int64(2), time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 3000.0, nil},
		},
	}

	want := "id | booking_date | amount | creditor_name\n" +
		"1 | 2025-04-30 | -12.5 | Biedronka\n" +
		"2 | 2025-05-01 | 3000 | NULL"
	if got := rows.Text(); got != want {
		t.Fatalf("Text() =\n%s\nwant\n%s", got, want)
	}
}

func TestRowsTruncate(t *testing.T) {
	rows := Rows{Columns: []string{"id"}, Values: [][]any{{1}, {2}, {3}}}

	got, truncated := rows.Truncate(2)
	if !truncated || got.Len() != 2 {
		t.Fatalf("Truncate(2) = %d rows, truncated=%v", got.Len(), truncated)
	}
	got, truncated = rows.Truncate(5)
	if truncated || got.Len() != 3 {
		t.Fatalf("Truncate(5) = %d rows, truncated=%v", got.Len(), truncated)
	}
}

func TestValidateTable(t *testing.T) {
	for _, ok := range []string{"all_transactions", "_t1"} {
		if err := ValidateTable(ok); err != nil {
			t.Fatalf("ValidateTable(%q) error = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "1abc", "x; DROP", `a"b`} {
		if err := ValidateTable(bad); !errors.Is(err, ErrInvalidTable) {
			t.Fatalf("ValidateTable(%q) expected ErrInvalidTable, got %v", bad, err)
		}
	}
}

func TestUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		msg   string
	}{
		{name: "no cause", cause: nil, msg: ErrSourceNotFound.Error()},
		{name: "wrapped", cause: errors.New("dial tcp: refused"), msg: "dial tcp: refused"},
		{name: "already not found", cause: fmt.Errorf("%w: x.db", ErrSourceNotFound), msg: ErrSourceNotFound.Error() + ": x.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := Unavailable{Cause: tt.cause}
			if _, err := src.FetchRows(context.Background(), 10); !errors.Is(err, ErrSourceNotFound) {
				t.Fatalf("FetchRows() error = %v", err)
			}
			_, err := src.Query(context.Background(), "SELECT 1")
			if !errors.Is(err, ErrSourceNotFound) || !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("Query() error = %v, want %q", err, tt.msg)
			}
			if src.Table() != DefaultTable {
				t.Fatalf("Table() = %q", src.Table())
			}
			if err := Unreachable(src); !errors.Is(err, ErrSourceNotFound) {
				t.Fatalf("Unreachable() = %v", err)
			}
			if err := Unreachable(&src); !errors.Is(err, ErrSourceNotFound) {
				t.Fatalf("Unreachable(pointer) = %v", err)
			}
		})
	}

	if Unreachable(nil) != nil {
		t.Fatalf("nil source is not a placeholder")
	}
}
