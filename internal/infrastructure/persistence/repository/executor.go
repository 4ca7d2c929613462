package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/garyjia/purchase-workflow/internal/infrastructure/persistence/sqlite"
)

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// executorFor returns the transaction carried by ctx, or db
func executorFor(ctx context.Context, db *sql.DB) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, db)
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
