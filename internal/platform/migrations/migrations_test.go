package migrations

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestApplyExecutesAllMigrations(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS wishes").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS wishes_wallet_created_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS wishes_ip_created_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS admin_wish_logs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS admin_wish_logs_wallet_created_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS hoard_accounts").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := Apply(context.Background(), db, DialectPostgres); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatementsPerDialect(t *testing.T) {
	pg, err := Statements(DialectPostgres)
	if err != nil {
		t.Fatalf("postgres statements: %v", err)
	}
	lite, err := Statements(DialectSQLite)
	if err != nil {
		t.Fatalf("sqlite statements: %v", err)
	}
	if len(pg) != len(lite) {
		t.Fatalf("dialects diverge: %d vs %d statements", len(pg), len(lite))
	}
	for _, stmt := range lite {
		if strings.Contains(stmt, "JSONB") || strings.Contains(stmt, "BYTEA") || strings.Contains(stmt, "TIMESTAMPTZ") {
			t.Errorf("postgres type in sqlite schema: %s", stmt)
		}
	}
	if _, err := Statements("oracle"); err == nil {
		t.Errorf("expected error for unknown dialect")
	}
}

func TestApplyStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS wishes").WillReturnError(context.DeadlineExceeded)

	err = Apply(context.Background(), db, DialectSQLite)
	if err == nil || !strings.Contains(err.Error(), "statement 1") {
		t.Fatalf("expected failure on first statement, got %v", err)
	}
}
