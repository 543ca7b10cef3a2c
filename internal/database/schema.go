package database

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schemaSQL string

// Execer runs a statement. *pgxpool.Pool implements it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Statements returns the schema statements in order.
func Statements() []string {
	var stmts []string
	for _, part := range strings.Split(schemaSQL, ";") {
		if s := strings.TrimSpace(stripComments(part)); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

// Migrate creates the recorder tables if they do not exist.
func Migrate(ctx context.Context, db Execer) error {
	for i, stmt := range Statements() {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

func stripComments(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
