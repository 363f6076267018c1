// Package warehouse is the storage-engine boundary: dry-run compilation of
// candidate SQL, real execution into tabular frames, and the table metadata
// needed to reconcile the schema catalog at startup.
package warehouse

import (
	"context"
	"fmt"
)

// Engine abstracts the SQL warehouse. Two implementations exist: BigQuery for
// production and DuckDB for local development. All methods are safe for
// concurrent use; none of them mutates warehouse state.
type Engine interface {
	// DryRun compiles the statement without executing it. A nil return means
	// the statement is valid. On failure the returned error carries the
	// engine's diagnostic text verbatim.
	DryRun(ctx context.Context, sql string) error

	// Query executes the statement and materializes the full result set.
	Query(ctx context.Context, sql string) (*Frame, error)

	// ListTables returns the physical table names currently present in the
	// configured dataset.
	ListTables(ctx context.Context) ([]string, error)

	// ColumnTypes returns column name to engine type for one physical table.
	ColumnTypes(ctx context.Context, table string) (map[string]string, error)

	Close() error
}

// Config selects and parameterizes the warehouse engine from the environment.
type Config struct {
	Driver        string `envconfig:"WAREHOUSE_DRIVER" default:"bigquery"`
	ProjectID     string `envconfig:"BQ_PROJECT_ID"`
	DataProjectID string `envconfig:"DATA_PROJECT_ID"`
	Location      string `envconfig:"BQ_LOCATION" default:"US"`
	Dataset       string `envconfig:"CRM_DATASET" required:"true"`
	DuckDBPath    string `envconfig:"DUCKDB_PATH" default:"crm.duckdb"`
}

// NewEngine constructs the engine the config selects.
func NewEngine(ctx context.Context, cfg Config) (Engine, error) {
	switch cfg.Driver {
	case "bigquery":
		return NewBigQueryEngine(ctx, cfg)
	case "duckdb":
		return NewDuckDBEngine(cfg)
	default:
		return nil, fmt.Errorf("unknown warehouse driver %q", cfg.Driver)
	}
}
