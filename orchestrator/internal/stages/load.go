package stages

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// LoadResult reports a completed load.
type LoadResult struct {
	Table string
	Rows  int
}

type columnKind int

const (
	kindInteger columnKind = iota + 1
	kindReal
	kindDate
	kindTimestamp
	kindText
)

type dialect struct {
	name        string
	placeholder func(n int) string
	types       map[columnKind]string
}

var dialects = map[string]dialect{
	"sqlite": {
		name:        "sqlite",
		placeholder: func(int) string { return "?" },
		types: map[columnKind]string{
			kindInteger:   "INTEGER",
			kindReal:      "REAL",
			kindDate:      "TEXT",
			kindTimestamp: "TEXT",
			kindText:      "TEXT",
		},
	},
	"postgres": {
		name:        "postgres",
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		types: map[columnKind]string{
			kindInteger:   "BIGINT",
			kindReal:      "DOUBLE PRECISION",
			kindDate:      "DATE",
			kindTimestamp: "TIMESTAMPTZ",
			kindText:      "TEXT",
		},
	},
}

// Warehouse appends datasets to one analytics table.
type Warehouse struct {
	db      *sql.DB
	dialect dialect
	table   string
}

// OpenWarehouse opens the configured database. No connection is made until
// the first load.
func OpenWarehouse(cfg config.WarehouseConfig) (*Warehouse, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("stages: open warehouse: %w", err)
	}
	w, err := NewWarehouse(db, cfg.Driver, cfg.Table)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewWarehouse wraps db using the SQL dialect of driver.
func NewWarehouse(db *sql.DB, driver, table string) (*Warehouse, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("stages: unsupported warehouse driver %q", driver)
	}
	return &Warehouse{db: db, dialect: d, table: table}, nil
}

// Load creates the table if needed and inserts every row in one
// transaction. Column types are inferred from the values.
func (w *Warehouse) Load(ctx context.Context, ds dataset.Dataset) (LoadResult, error) {
	res := LoadResult{Table: w.table}
	if len(ds) == 0 {
		return res, nil
	}
	cols := ds.Fields()
	kinds := make([]columnKind, len(cols))
	for i, c := range cols {
		kinds[i] = inferKind(ds, c)
	}

	if _, err := w.db.ExecContext(ctx, w.createTable(cols, kinds)); err != nil {
		return res, fmt.Errorf("load: create table %s: %w", w.table, err)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("load: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, w.insert(cols))
	if err != nil {
		return res, fmt.Errorf("load: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	args := make([]any, len(cols))
	for i, row := range ds {
		for j, c := range cols {
			args[j] = w.value(row[c], kinds[j])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return res, fmt.Errorf("load: row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("load: commit: %w", err)
	}
	res.Rows = len(ds)
	return res, nil
}

func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) createTable(cols []string, kinds []columnKind) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = quoteIdent(c) + " " + w.dialect.types[kinds[i]]
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(w.table), strings.Join(defs, ", "))
}

func (w *Warehouse) insert(cols []string) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = quoteIdent(c)
		marks[i] = w.dialect.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(w.table), strings.Join(names, ", "), strings.Join(marks, ", "))
}

// value converts v to what the column kind stores. SQLite keeps dates as
// ISO text.
func (w *Warehouse) value(v any, kind columnKind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case kindInteger:
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		}
	case kindReal:
		if f, err := (dataset.Row{"v": v}).Number("v"); err == nil {
			return f
		}
	case kindDate, kindTimestamp:
		if t, ok := v.(time.Time); ok {
			if w.dialect.name == "sqlite" {
				return dataset.FormatValue(t)
			}
			return t
		}
	}
	return dataset.FormatValue(v)
}

// inferKind picks the narrowest column type that holds every value.
func inferKind(ds dataset.Dataset, col string) columnKind {
	var ints, reals, dates, stamps, texts int
	for _, r := range ds {
		switch x := r[col].(type) {
		case nil:
		case int64, int:
			ints++
		case float64, float32:
			reals++
		case time.Time:
			if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
				dates++
			} else {
				stamps++
			}
		default:
			texts++
		}
	}
	numbers := ints + reals
	times := dates + stamps
	switch {
	case texts > 0, numbers > 0 && times > 0:
		return kindText
	case reals > 0:
		return kindReal
	case ints > 0:
		return kindInteger
	case stamps > 0:
		return kindTimestamp
	case dates > 0:
		return kindDate
	}
	return kindText
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
