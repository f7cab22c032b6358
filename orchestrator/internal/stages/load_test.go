package stages

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

func summaryRows() dataset.Dataset {
	return dataset.Dataset{
		{"warehouse_id": "W1", "date": june1, "total_quantity": 15.0, "products": int64(2)},
		{"warehouse_id": "W2", "date": june1, "total_quantity": 100.0, "products": int64(1)},
	}
}

func TestWarehouse_SQLite(t *testing.T) {
	w, err := OpenWarehouse(config.WarehouseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "warehouse.db"),
		Table:  config.DefaultWarehouseTable,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	ctx := context.Background()

	res, err := w.Load(ctx, summaryRows())
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Table: config.DefaultWarehouseTable, Rows: 2}, res)

	// A second load appends to the existing table.
	_, err = w.Load(ctx, summaryRows())
	require.NoError(t, err)

	ds, err := Query(ctx, w.db, `SELECT "warehouse_id", "date", "total_quantity", "products" FROM "WAREHOUSE_ANALYTICS" ORDER BY "warehouse_id"`)
	require.NoError(t, err)
	require.Len(t, ds, 4)
	assert.Equal(t, "W1", ds[0]["warehouse_id"])
	assert.Equal(t, 15.0, ds[0]["total_quantity"])
	assert.Equal(t, int64(2), ds[0]["products"])
}

func TestWarehouse_EmptyDatasetIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w, err := NewWarehouse(db, "postgres", "t")
	require.NoError(t, err)
	res, err := w.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarehouse_PostgresStatements(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	w, err := NewWarehouse(db, "postgres", "WAREHOUSE_ANALYTICS")
	require.NoError(t, err)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "WAREHOUSE_ANALYTICS" ("date" DATE, "products" BIGINT, "total_quantity" DOUBLE PRECISION, "warehouse_id" TEXT)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "WAREHOUSE_ANALYTICS" ("date", "products", "total_quantity", "warehouse_id") VALUES ($1, $2, $3, $4)`)
	prep.ExpectExec().WithArgs(june1, int64(2), 15.0, "W1").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs(june1, int64(1), 100.0, "W2").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	res, err := w.Load(context.Background(), summaryRows())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWarehouse_RollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w, err := NewWarehouse(db, "postgres", "t")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO").ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = w.Load(context.Background(), summaryRows())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWarehouse_UnknownDriver(t *testing.T) {
	_, err := NewWarehouse(nil, "oracle", "t")
	assert.Error(t, err)
}

func TestInferKind(t *testing.T) {
	ds := dataset.Dataset{
		{"i": int64(1), "mixed": int64(1), "d": june1, "s": "x"},
		{"i": nil, "mixed": 2.5, "d": june2, "s": int64(3)},
	}
	assert.Equal(t, kindInteger, inferKind(ds, "i"))
	assert.Equal(t, kindReal, inferKind(ds, "mixed"))
	assert.Equal(t, kindDate, inferKind(ds, "d"))
	assert.Equal(t, kindText, inferKind(ds, "s"))
	assert.Equal(t, kindText, inferKind(ds, "absent"))
}
