package report

import (
	"context"
	"embed"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module provides the aggregate report runner.
var Module = fx.Module("report",
	fx.Provide(NewRunner),
)

//go:embed sql/*.sql
var queryFS embed.FS

// queries lists the read-only aggregates in export order. The SQL is
// consumed as text; the runner never builds queries itself.
var queries = []struct {
	Name string
	File string
}{
	{Name: "dau", File: "sql/dau.sql"},
	{Name: "revenue", File: "sql/revenue.sql"},
	{Name: "international_revenue", File: "sql/international_revenue.sql"},
	{Name: "event_counts", File: "sql/event_counts.sql"},
	{Name: "funnel", File: "sql/funnel.sql"},
}

// Result describes one exported report.
type Result struct {
	Name string
	Rows int
	Path string
}

// Runner executes the precomputed aggregate queries against the warehouse
// and exports each as CSV.
type Runner struct {
	conn *gorm.DB
	log  *zap.Logger
}

func NewRunner(conn *gorm.DB, log *zap.Logger) *Runner {
	return &Runner{conn: conn, log: log}
}

// RunAll executes every embedded query and writes one CSV per query into
// exportDir.
func (r *Runner) RunAll(ctx context.Context, exportDir string) ([]Result, error) {
	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(queries))
	for _, q := range queries {
		sqlText, err := queryFS.ReadFile(q.File)
		if err != nil {
			return nil, fmt.Errorf("read query %s: %w", q.Name, err)
		}

		outPath := filepath.Join(exportDir, q.Name+".csv")
		rows, err := r.export(ctx, string(sqlText), outPath)
		if err != nil {
			return nil, fmt.Errorf("run query %s: %w", q.Name, err)
		}

		r.log.Info("report exported",
			zap.String("name", q.Name),
			zap.Int("rows", rows),
			zap.String("path", outPath))
		results = append(results, Result{Name: q.Name, Rows: rows, Path: outPath})
	}
	return results, nil
}

func (r *Runner) export(ctx context.Context, sqlText, outPath string) (int, error) {
	rows, err := r.conn.WithContext(ctx).Raw(sqlText).Rows()
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return 0, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return 0, err
	}

	count := 0
	values := make([]any, len(columns))
	holders := make([]any, len(columns))
	for i := range values {
		holders[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(holders...); err != nil {
			return count, err
		}
		record := make([]string, len(columns))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	w.Flush()
	return count, w.Error()
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
