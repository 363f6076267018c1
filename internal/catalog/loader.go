package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/crmlens/engine/internal/warehouse"
	logx "github.com/crmlens/engine/pkg/logger"
)

// Config locates the persisted catalog snapshot.
type Config struct {
	SnapshotPath string `envconfig:"CATALOG_SNAPSHOT_FILE" default:"crm_metadata.json"`
}

// ReadSnapshot loads the persisted snapshot JSON written by the offline
// metadata extraction.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse catalog snapshot %s: %w", path, err)
	}
	return snap, nil
}

// Load reads the snapshot and reconciles it once against the live warehouse:
// entities whose physical table no longer exists are dropped, and column
// types are refreshed from the engine, overriding the snapshot. There is no
// background refresh; call Load again for an explicit reload.
func Load(ctx context.Context, cfg Config, engine warehouse.Engine, project, dataset string) (*Catalog, error) {
	snap, err := ReadSnapshot(cfg.SnapshotPath)
	if err != nil {
		return nil, err
	}

	reconciled, err := Reconcile(ctx, snap, engine)
	if err != nil {
		return nil, err
	}

	return New(reconciled, project, dataset)
}

// Reconcile trims the snapshot down to tables the engine actually has and
// refreshes column types from live metadata. References pointing at dropped
// entities are pruned so the catalog invariants keep holding.
func Reconcile(ctx context.Context, snap Snapshot, engine warehouse.Engine) (Snapshot, error) {
	tables, err := engine.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("list warehouse tables: %w", err)
	}
	live := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		live[t] = struct{}{}
	}

	out := make(Snapshot, len(snap))
	for logical, ent := range snap {
		if _, ok := live[ent.TableName]; !ok {
			logx.Warn().
				Str("entity", logical).
				Str("table", ent.TableName).
				Msg("dropping catalog entity absent from warehouse")
			continue
		}

		types, err := engine.ColumnTypes(ctx, ent.TableName)
		if err != nil {
			return nil, fmt.Errorf("column types for %s: %w", ent.TableName, err)
		}
		for name, col := range ent.Columns {
			if t, ok := types[name]; ok {
				col.Type = t
			}
		}
		out[logical] = ent
	}

	for logical, ent := range out {
		for colName, col := range ent.Columns {
			if col.Reference == nil {
				continue
			}
			kept := col.Reference.RefersTo[:0]
			for _, target := range col.Reference.RefersTo {
				if _, ok := out[target]; ok {
					kept = append(kept, target)
				}
			}
			col.Reference.RefersTo = kept
			if len(kept) == 0 {
				logx.Debug().
					Str("entity", logical).
					Str("column", colName).
					Msg("pruning reference to dropped entities")
				col.Reference = nil
			}
		}
	}

	logx.Info().
		Int("entities", len(out)).
		Int("snapshot_entities", len(snap)).
		Msg("catalog reconciled against warehouse")
	return out, nil
}
