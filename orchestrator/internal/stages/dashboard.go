package stages

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/warehousepulse/warehousepulse/orchestrator/internal/config"
	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

// dashboardNames are the display names BI tools expect.
var dashboardNames = map[string]string{
	"total_quantity":      "Total Inventory",
	"average_order_value": "Average Order Value",
	"date":                "Date",
	"warehouse_id":        "Warehouse ID",
}

// PrepareForDashboard adds inventory_utilization (total_quantity as a
// percentage of storage_capacity), renames columns for display and sorts by
// Date. The input is not modified.
func PrepareForDashboard(ds dataset.Dataset) dataset.Dataset {
	out := ds.Clone()
	for _, row := range out {
		qty, err := row.Number("total_quantity")
		if err != nil {
			continue
		}
		capacity, err := row.Number("storage_capacity")
		if err != nil || capacity == 0 {
			continue
		}
		row["inventory_utilization"] = qty / capacity * 100
	}
	for _, row := range out {
		for from, to := range dashboardNames {
			if v, ok := row[from]; ok {
				delete(row, from)
				row[to] = v
			}
		}
	}
	out.SortBy("Date")
	return out
}

// EncodeCSV writes ds with a header of its sorted field names.
func EncodeCSV(w io.Writer, ds dataset.Dataset) error {
	cols := ds.Fields()
	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for _, row := range ds {
		for i, c := range cols {
			rec[i] = dataset.FormatValue(row[c])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Exporter publishes the dashboard file.
type Exporter interface {
	Export(ctx context.Context, data []byte) error
	String() string
}

// NewExporter picks the exporter for cfg.ExportPath: s3://bucket/key,
// gs://bucket/object, or a local path.
func NewExporter(ctx context.Context, cfg config.DashboardConfig) (Exporter, error) {
	target := cfg.ExportPath
	switch {
	case strings.HasPrefix(target, "s3://"):
		bucket, key, err := splitObjectURL(target, "s3://")
		if err != nil {
			return nil, err
		}
		return NewS3Exporter(ctx, bucket, key, cfg.Region, cfg.Endpoint)
	case strings.HasPrefix(target, "gs://"):
		bucket, object, err := splitObjectURL(target, "gs://")
		if err != nil {
			return nil, err
		}
		return NewGCSExporter(bucket, object), nil
	}
	return &FileExporter{Path: target}, nil
}

func splitObjectURL(u, scheme string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(strings.TrimPrefix(u, scheme), "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("stages: %w: export path %q needs %sbucket/object", config.ErrInvalid, u, scheme)
	}
	return bucket, key, nil
}

// FileExporter replaces a local file atomically.
type FileExporter struct {
	Path string
}

func (f *FileExporter) Export(_ context.Context, data []byte) error {
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".dashboard-*.csv")
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("export: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("export: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("export: rename: %w", err)
	}
	return nil
}

func (f *FileExporter) String() string { return f.Path }

// s3Putter is the slice of the S3 client the exporter uses.
type s3Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Exporter uploads the dashboard file to S3 or an S3-compatible store.
type S3Exporter struct {
	client s3Putter
	bucket string
	key    string
}

// NewS3Exporter loads the default AWS credential chain. A non-empty
// endpoint selects path-style addressing for MinIO and LocalStack.
func NewS3Exporter(ctx context.Context, bucket, key, region, endpoint string) (*S3Exporter, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("stages: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Exporter{client: client, bucket: bucket, key: key}, nil
}

func (e *S3Exporter) Export(ctx context.Context, data []byte) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(e.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("export: s3 put: %w", err)
	}
	return nil
}

func (e *S3Exporter) String() string { return "s3://" + e.bucket + "/" + e.key }

// GCSExporter uploads the dashboard file to Google Cloud Storage using
// application default credentials. The client is created on first use.
type GCSExporter struct {
	bucket string
	object string

	mu        sync.Mutex
	client    *storage.Client
	newWriter func(ctx context.Context, bucket, object string) (io.WriteCloser, error)
}

func NewGCSExporter(bucket, object string) *GCSExporter {
	g := &GCSExporter{bucket: bucket, object: object}
	g.newWriter = g.storageWriter
	return g
}

func (g *GCSExporter) storageWriter(ctx context.Context, bucket, object string) (io.WriteCloser, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		c, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		g.client = c
	}
	w := g.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/csv"
	return w, nil
}

func (g *GCSExporter) Export(ctx context.Context, data []byte) error {
	w, err := g.newWriter(ctx, g.bucket, g.object)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("export: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("export: gcs close: %w", err)
	}
	return nil
}

func (g *GCSExporter) String() string { return "gs://" + g.bucket + "/" + g.object }

// Close releases the storage client if one was created.
func (g *GCSExporter) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
