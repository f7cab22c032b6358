package stages

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// Extractor reads every configured source and concatenates the rows in
// source order.
type Extractor struct {
	sources []config.Source
	open    func(driver, dsn string) (*sql.DB, error)
}

// NewExtractor returns an Extractor over sources.
func NewExtractor(sources []config.Source) *Extractor {
	return &Extractor{sources: sources, open: sql.Open}
}

// Extract reads all sources. Any failing source fails the extraction.
func (e *Extractor) Extract(ctx context.Context) (dataset.Dataset, error) {
	if len(e.sources) == 0 {
		return nil, errors.New("extract: no sources configured")
	}
	var out dataset.Dataset
	for _, src := range e.sources {
		var (
			ds  dataset.Dataset
			err error
		)
		switch src.Type {
		case "csv":
			ds, err = ReadCSVGlob(src.Path)
		case "sql":
			ds, err = e.query(ctx, src)
		default:
			err = fmt.Errorf("unknown source type %q", src.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("extract: source %q: %w", src.Name, err)
		}
		slog.Info("stages: source extracted", "source", src.Name, "rows", len(ds))
		out = append(out, ds...)
	}
	return out, nil
}

func (e *Extractor) query(ctx context.Context, src config.Source) (dataset.Dataset, error) {
	db, err := e.open(src.Driver, src.ConnString())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Driver, err)
	}
	defer func() { _ = db.Close() }()
	return Query(ctx, db, src.Query)
}

// Query runs query on db and converts the result set to a Dataset.
func Query(ctx context.Context, db *sql.DB, query string) (dataset.Dataset, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out dataset.Dataset
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(dataset.Row, len(cols))
		for i, c := range cols {
			row[c] = normalize(vals[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize maps driver values onto the dataset scalar set.
func normalize(v any) any {
	switch x := v.(type) {
	case []byte:
		return dataset.ParseValue(string(x))
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

// ReadCSVGlob reads every file matching pattern, in lexical order.
func ReadCSVGlob(pattern string) (dataset.Dataset, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	sort.Strings(matches)

	var out dataset.Dataset
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		ds, err := ReadCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, ds...)
	}
	return out, nil
}

// ReadCSV decodes a CSV document with a header row. Cell types are inferred
// with dataset.ParseValue; empty cells are nil.
func ReadCSV(r io.Reader) (dataset.Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var out dataset.Dataset
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := make(dataset.Row, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = dataset.ParseValue(rec[i])
			} else {
				row[name] = nil
			}
		}
		out = append(out, row)
	}
	return out, nil
}
