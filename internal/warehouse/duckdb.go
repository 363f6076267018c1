package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	logx "github.com/crmlens/engine/pkg/logger"
)

// DuckDBEngine backs the warehouse boundary with a local DuckDB file for
// development and tests. Dry runs are PREPARE-based: the statement is
// compiled by the engine but never executed.
type DuckDBEngine struct {
	db      *sql.DB
	dataset string
}

func NewDuckDBEngine(cfg Config) (*DuckDBEngine, error) {
	db, err := sql.Open("duckdb", cfg.DuckDBPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}

	logx.Debug().Str("path", cfg.DuckDBPath).Msg("duckdb engine ready")
	return &DuckDBEngine{db: db, dataset: cfg.Dataset}, nil
}

func (e *DuckDBEngine) DryRun(ctx context.Context, sqlText string) error {
	stmt, err := e.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return err
	}
	return stmt.Close()
}

func (e *DuckDBEngine) Query(ctx context.Context, sqlText string) (*Frame, error) {
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	frame := &Frame{Columns: make([]Column, len(colTypes))}
	for i, ct := range colTypes {
		frame.Columns[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	for rows.Next() {
		values := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		frame.Rows = append(frame.Rows, values)
	}
	return frame, rows.Err()
}

func (e *DuckDBEngine) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (e *DuckDBEngine) ColumnTypes(ctx context.Context, table string) (map[string]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		types[name] = typ
	}
	return types, rows.Err()
}

func (e *DuckDBEngine) Close() error {
	return e.db.Close()
}
