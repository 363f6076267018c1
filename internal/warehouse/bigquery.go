package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	logx "github.com/crmlens/engine/pkg/logger"
)

// BigQueryEngine runs against a BigQuery dataset using fully qualified
// `project.dataset.table` identifiers. The dataset location is resolved once
// at construction and reused for every job.
type BigQueryEngine struct {
	client      *bigquery.Client
	dataProject string
	dataset     string
	location    string
}

func NewBigQueryEngine(ctx context.Context, cfg Config) (*BigQueryEngine, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}

	dataProject := cfg.DataProjectID
	if dataProject == "" {
		dataProject = cfg.ProjectID
	}

	md, err := client.DatasetInProject(dataProject, cfg.Dataset).Metadata(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve dataset %s.%s: %w", dataProject, cfg.Dataset, err)
	}

	logx.Debug().
		Str("dataset", cfg.Dataset).
		Str("location", md.Location).
		Msg("bigquery engine ready")

	return &BigQueryEngine{
		client:      client,
		dataProject: dataProject,
		dataset:     cfg.Dataset,
		location:    md.Location,
	}, nil
}

func (e *BigQueryEngine) DryRun(ctx context.Context, sql string) error {
	q := e.client.Query(sql)
	q.DryRun = true
	q.DisableQueryCache = true
	q.Location = e.location
	if _, err := q.Run(ctx); err != nil {
		return err
	}
	return nil
}

func (e *BigQueryEngine) Query(ctx context.Context, sql string) (*Frame, error) {
	q := e.client.Query(sql)
	q.DisableQueryCache = true
	q.Location = e.location

	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}

	frame := &Frame{}
	var row []bigquery.Value
	for {
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if frame.Columns == nil {
			for _, f := range it.Schema {
				frame.Columns = append(frame.Columns, Column{Name: f.Name, Type: string(f.Type)})
			}
		}
		values := make([]any, len(row))
		for i, v := range row {
			values[i] = normalizeValue(v)
		}
		frame.Rows = append(frame.Rows, values)
	}

	// Empty result: schema is still available from the iterator.
	if frame.Columns == nil {
		for _, f := range it.Schema {
			frame.Columns = append(frame.Columns, Column{Name: f.Name, Type: string(f.Type)})
		}
	}
	return frame, nil
}

func (e *BigQueryEngine) ListTables(ctx context.Context) ([]string, error) {
	it := e.client.DatasetInProject(e.dataProject, e.dataset).Tables(ctx)
	var names []string
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, t.TableID)
	}
	return names, nil
}

func (e *BigQueryEngine) ColumnTypes(ctx context.Context, table string) (map[string]string, error) {
	md, err := e.client.DatasetInProject(e.dataProject, e.dataset).Table(table).Metadata(ctx)
	if err != nil {
		return nil, err
	}
	types := make(map[string]string, len(md.Schema))
	for _, f := range md.Schema {
		types[f.Name] = string(f.Type)
	}
	return types, nil
}

func (e *BigQueryEngine) Close() error {
	return e.client.Close()
}

func normalizeValue(v bigquery.Value) any {
	switch t := v.(type) {
	case nil, string, int64, float64, bool:
		return t
	case time.Time:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// Diagnostic extracts the engine's diagnostic text from a warehouse error.
// The API error message is preferred because it matches what the BigQuery
// console would show for the same statement.
func Diagnostic(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return strings.TrimSpace(gerr.Message)
	}
	return strings.TrimSpace(err.Error())
}
