package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Schema returns the DDL statements for a dialect.
func Schema(d Dialect) ([]string, error) {
	data, err := schemaFS.ReadFile("schema/" + d.Name() + ".sql")
	if err != nil {
		return nil, fmt.Errorf("store: no schema for %s: %w", d.Name(), err)
	}

	var stmts []string
	for _, s := range strings.Split(string(data), ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts, nil
}

// InitSchema creates missing tables.
func (db *DB) InitSchema(ctx context.Context) error {
	stmts, err := Schema(db.dialect)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	db.logger.Info("Schema initialized", "driver", db.dialect.Name(), "statements", len(stmts))
	return nil
}
