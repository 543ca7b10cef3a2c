package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type recordingExecer struct {
	stmts  []string
	failAt int
}

func (e *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	e.stmts = append(e.stmts, sql)
	if e.failAt > 0 && len(e.stmts) == e.failAt {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func TestStatements(t *testing.T) {
	stmts := Statements()

	for _, table := range []string{"trades", "quotes", "book_snapshots", "bars", "statuses", "instrument_definitions"} {
		found := false
		for _, s := range stmts {
			if strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS "+table+" ") {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("no CREATE TABLE for %s", table)
		}
	}

	for i, s := range stmts {
		if strings.Contains(s, "--") {
			t.Errorf("statement %d still has a comment: %q", i, s)
		}
	}
}

func TestMigrate(t *testing.T) {
	e := &recordingExecer{}
	if err := Migrate(context.Background(), e); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(e.stmts) != len(Statements()) {
		t.Errorf("executed %d statements, want %d", len(e.stmts), len(Statements()))
	}
}

func TestMigrate_StopsOnError(t *testing.T) {
	e := &recordingExecer{failAt: 2}
	err := Migrate(context.Background(), e)
	if err == nil || !strings.Contains(err.Error(), "schema statement 2") {
		t.Errorf("Migrate() error = %v, want statement 2 failure", err)
	}
	if len(e.stmts) != 2 {
		t.Errorf("executed %d statements, want 2", len(e.stmts))
	}
}
