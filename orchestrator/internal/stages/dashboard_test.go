package stages

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

func TestPrepareForDashboard(t *testing.T) {
	in := dataset.Dataset{
		{"warehouse_id": "W1", "date": june2, "total_quantity": 50.0, "storage_capacity": 200.0, "average_order_value": 30.0},
		{"warehouse_id": "W2", "date": june1, "total_quantity": 80.0, "storage_capacity": 0.0},
	}
	out := PrepareForDashboard(in)
	require.Len(t, out, 2)

	assert.Equal(t, "W2", out[0]["Warehouse ID"], "sorted by Date")
	assert.False(t, out[0].Has("inventory_utilization"), "zero capacity")
	assert.Equal(t, 80.0, out[0]["Total Inventory"])

	assert.Equal(t, 25.0, out[1]["inventory_utilization"])
	assert.Equal(t, 30.0, out[1]["Average Order Value"])
	assert.Equal(t, june2, out[1]["Date"])
	assert.False(t, out[1].Has("total_quantity"))

	assert.Equal(t, "W1", in[0]["warehouse_id"], "input untouched")
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	err := EncodeCSV(&buf, dataset.Dataset{
		{"Date": june1, "Total Inventory": 15.0, "note": "a,b"},
		{"Date": june2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Date,Total Inventory,note\n2024-06-01,15,\"a,b\"\n2024-06-02,,\n", buf.String())
}

func TestNewExporter(t *testing.T) {
	ctx := context.Background()

	e, err := NewExporter(ctx, config.DashboardConfig{ExportPath: "out/dashboard.csv"})
	require.NoError(t, err)
	assert.IsType(t, &FileExporter{}, e)

	e, err = NewExporter(ctx, config.DashboardConfig{ExportPath: "gs://reports/dashboard.csv"})
	require.NoError(t, err)
	assert.Equal(t, "gs://reports/dashboard.csv", e.String())

	e, err = NewExporter(ctx, config.DashboardConfig{
		ExportPath: "s3://reports/daily/dashboard.csv",
		Region:     "eu-west-1",
		Endpoint:   "http://localhost:9000",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://reports/daily/dashboard.csv", e.String())

	for _, bad := range []string{"s3://reports", "gs:///x.csv"} {
		_, err = NewExporter(ctx, config.DashboardConfig{ExportPath: bad})
		assert.ErrorIs(t, err, config.ErrInvalid, bad)
	}
}

func TestFileExporter(t *testing.T) {
	dir := t.TempDir()
	f := &FileExporter{Path: filepath.Join(dir, "dashboard.csv")}

	require.NoError(t, f.Export(context.Background(), []byte("first\n")))
	require.NoError(t, f.Export(context.Background(), []byte("second\n")))

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "second\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")

	bad := &FileExporter{Path: filepath.Join(dir, "missing", "dashboard.csv")}
	assert.Error(t, bad.Export(context.Background(), []byte("x")))
}

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Exporter(t *testing.T) {
	put := &fakePutter{}
	e := &S3Exporter{client: put, bucket: "reports", key: "daily/dashboard.csv"}

	require.NoError(t, e.Export(context.Background(), []byte("a,b\n")))
	assert.Equal(t, "reports", aws.ToString(put.in.Bucket))
	assert.Equal(t, "daily/dashboard.csv", aws.ToString(put.in.Key))
	assert.Equal(t, "text/csv", aws.ToString(put.in.ContentType))
	assert.Equal(t, "a,b\n", string(put.body))

	put.err = errors.New("access denied")
	assert.ErrorContains(t, e.Export(context.Background(), nil), "access denied")
}

type bufferWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (b *bufferWriter) Close() error {
	b.closed = true
	return b.closeErr
}

func TestGCSExporter(t *testing.T) {
	w := &bufferWriter{}
	var gotBucket, gotObject string
	g := NewGCSExporter("reports", "dashboard.csv")
	g.newWriter = func(_ context.Context, bucket, object string) (io.WriteCloser, error) {
		gotBucket, gotObject = bucket, object
		return w, nil
	}

	require.NoError(t, g.Export(context.Background(), []byte("a,b\n")))
	assert.Equal(t, "reports", gotBucket)
	assert.Equal(t, "dashboard.csv", gotObject)
	assert.Equal(t, "a,b\n", w.String())
	assert.True(t, w.closed)

	w.closeErr = errors.New("precondition failed")
	assert.ErrorContains(t, g.Export(context.Background(), nil), "precondition failed")

	assert.NoError(t, g.Close(), "no client was created")
}
