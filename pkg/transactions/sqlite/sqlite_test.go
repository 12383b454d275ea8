package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/potrek505/TEG-project/pkg/transactions"
)

func seed(t *testing.T, rows int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE all_transactions (
		id INTEGER PRIMARY KEY,
		booking_date TEXT,
		amount REAL,
		currency TEXT,
		remittance_info_unstructured TEXT
	)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= rows; i++ {
		if _, err := db.Exec(
			`INSERT INTO all_transactions (booking_date, amount, currency, remittance_info_unstructured) VALUES (?, ?, 'PLN', ?)`,
			"2025-04-0"+string(rune('0'+i%10)), -10.0*float64(i), "BLIK payment",
		); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return path
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), Params{Path: filepath.Join(t.TempDir(), "nope.db")})
	if !errors.Is(err, transactions.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound, got %v", err)
	}
	_, err = Open(context.Background(), Params{})
	if !errors.Is(err, transactions.ErrSourceNotFound) {
		t.Fatalf("expected ErrSourceNotFound for empty path, got %v", err)
	}
}

func TestFetchRowsRespectsLimit(t *testing.T) {
	src, err := Open(context.Background(), Params{Path: seed(t, 5)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	rows, err := src.FetchRows(context.Background(), 3)
	if err != nil {
		t.Fatalf("FetchRows() error = %v", err)
	}
	if rows.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", rows.Len())
	}
	if len(rows.Columns) != 5 || rows.Columns[2] != "amount" {
		t.Fatalf("unexpected columns %v", rows.Columns)
	}
}

func TestQuery(t *testing.T) {
	src, err := Open(context.Background(), Params{Path: seed(t, 4)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	rows, err := src.Query(context.Background(), "SELECT SUM(amount) AS total FROM all_transactions WHERE remittance_info_unstructured LIKE '%BLIK%';")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := rows.Text(); got != "total\n-100" {
		t.Fatalf("unexpected result %q", got)
	}

	if _, err := src.Query(context.Background(), "DELETE FROM all_transactions"); !errors.Is(err, transactions.ErrNotReadOnly) {
		t.Fatalf("expected ErrNotReadOnly, got %v", err)
	}

	_, err = src.Query(context.Background(), "SELECT nope FROM all_transactions")
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("expected column error, got %v", err)
	}
}

func TestEmptyTable(t *testing.T) {
	src, err := Open(context.Background(), Params{Path: seed(t, 0)})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer src.Close()

	rows, err := src.FetchRows(context.Background(), 1000)
	if err != nil {
		t.Fatalf("FetchRows() error = %v", err)
	}
	if rows.Len() != 0 {
		t.Fatalf("expected no rows, got %d", rows.Len())
	}
}
