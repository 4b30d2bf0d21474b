package s3

import (
	"bytes"
	"context"
	stderr "errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"
	"go.uber.org/zap"

	"github.com/objectfs/webvfs/internal/storage"
	"github.com/objectfs/webvfs/internal/storage/codec"
	"github.com/objectfs/webvfs/pkg/errors"
	"github.com/objectfs/webvfs/pkg/types"
	"github.com/objectfs/webvfs/pkg/utils"
)

const contentType = "application/cbor"

// Backend stores one object per record under <prefix>n<path>. Children of
// a directory are the keys directly below <prefix>n<dir>/, so the parent
// index is the bucket's own delimiter listing.
type Backend struct {
	client      API
	transporter *cargoships3.Transporter
	config      *Config
	logger      *zap.Logger

	mu      sync.RWMutex
	metrics BackendMetrics
}

// BackendMetrics tracks request counts and traffic.
type BackendMetrics struct {
	Requests        int64         `json:"requests"`
	Errors          int64         `json:"errors"`
	BytesUploaded   int64         `json:"bytes_uploaded"`
	BytesDownloaded int64         `json:"bytes_downloaded"`
	TotalLatency    time.Duration `json:"total_latency"`
	LastError       string        `json:"last_error,omitempty"`
	LastErrorTime   time.Time     `json:"last_error_time"`
}

var _ storage.Adapter = (*Backend)(nil)

// NewBackend creates an adapter over client. transporter may be nil.
func NewBackend(client API, transporter *cargoships3.Transporter, cfg *Config, logger *zap.Logger) *Backend {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}
	return &Backend{
		client:      client,
		transporter: transporter,
		config:      cfg,
		logger:      utils.OrNop(logger).Named("s3").With(zap.String("bucket", cfg.Bucket)),
	}
}

// Open builds the AWS client from cfg and returns a ready backend.
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (*Backend, error) {
	client, transporter, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeInitFailed, "create S3 client").WithCause(err)
	}
	b := NewBackend(client, transporter, cfg, logger)
	if transporter != nil {
		b.logger.Info("CargoShip S3 optimization enabled", zap.Int("concurrency", cfg.Concurrency))
	}
	return b, nil
}

// Init verifies the bucket is reachable.
func (b *Backend) Init(ctx context.Context) error {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.config.Bucket)})
	if err != nil {
		return errors.NewError(errors.ErrCodeInitFailed, "S3 health check failed").WithCause(err)
	}
	return nil
}

// Get implements storage.Adapter.
func (b *Backend) Get(ctx context.Context, path string) (*types.Record, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	return b.get(ctx, b.key(path), path)
}

// Put implements storage.Adapter. A record whose parent changed needs no
// index maintenance: the key, not the record, decides where it is listed.
func (b *Backend) Put(ctx context.Context, rec *types.Record) error {
	start := time.Now()
	data, err := codec.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageWrite, "put")
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()
	key := b.key(rec.Path)

	if b.transporter != nil {
		archive := cargoships3.Archive{
			Key:          key,
			Reader:       bytes.NewReader(data),
			Size:         int64(len(data)),
			StorageClass: cargoStorageClass(b.config.StorageTier),
			Metadata: map[string]string{
				"webvfs-path": rec.Path,
				"webvfs-kind": string(rec.Kind),
			},
		}
		result, uploadErr := b.transporter.Upload(ctx, archive)
		if uploadErr == nil {
			b.logger.Debug("CargoShip optimized upload completed",
				zap.String("key", key),
				zap.Int("size", len(data)),
				zap.Any("throughput", result.Throughput),
				zap.Any("duration", result.Duration))
			b.record(start, int64(len(data)), 0, nil)
			return nil
		}
		b.logger.Warn("CargoShip upload failed, falling back to standard S3",
			zap.String("key", key), zap.Error(uploadErr))
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.config.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		StorageClass:  storageClass(b.config.StorageTier),
		Metadata:      map[string]string{"webvfs-path": rec.Path},
	})
	b.record(start, int64(len(data)), 0, err)
	if err != nil {
		return b.translateError(err, "put", rec.Path)
	}
	return nil
}

// Delete implements storage.Adapter.
func (b *Backend) Delete(ctx context.Context, path string) error {
	start := time.Now()
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(b.key(path)),
	})
	b.record(start, 0, 0, err)
	if err != nil && !isErrorType[*s3types.NoSuchKey](err) {
		return b.translateError(err, "delete", path)
	}
	return nil
}

// GetChildren implements storage.Adapter.
func (b *Backend) GetChildren(ctx context.Context, parent string) ([]*types.Record, error) {
	prefix := b.key(parent)
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return b.list(ctx, prefix, "/")
}

// GetAll implements storage.Adapter.
func (b *Backend) GetAll(ctx context.Context) ([]*types.Record, error) {
	return b.list(ctx, b.config.Prefix+"n", "")
}

// Close implements storage.Adapter.
func (b *Backend) Close() error {
	return nil
}

// GetMetrics returns a copy of the request metrics.
func (b *Backend) GetMetrics() BackendMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

func (b *Backend) list(ctx context.Context, prefix, delimiter string) ([]*types.Record, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.config.Bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(b.client, input)
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		b.record(start, 0, 0, err)
		if err != nil {
			return nil, b.translateError(err, "list", prefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// the directory's own object shares the prefix when listing the root
			if key == prefix {
				continue
			}
			keys = append(keys, key)
		}
	}

	out := make([]*types.Record, 0, len(keys))
	for _, key := range keys {
		rec, err := b.get(ctx, key, b.pathOf(key))
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	storage.SortRecords(out)
	return out, nil
}

func (b *Backend) get(ctx context.Context, key, path string) (*types.Record, error) {
	start := time.Now()
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		b.record(start, 0, 0, err)
		return nil, b.translateError(err, "get", path)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	b.record(start, 0, int64(len(data)), err)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeStorageRead, "read object body").WithPath(path).WithCause(err)
	}
	rec, err := codec.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageRead, "get")
	}
	return rec, nil
}

func (b *Backend) key(path string) string {
	return b.config.Prefix + "n" + path
}

func (b *Backend) pathOf(key string) string {
	return strings.TrimPrefix(key, b.config.Prefix+"n")
}

func (b *Backend) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.config.RequestTimeout)
}

func (b *Backend) record(start time.Time, uploaded, downloaded int64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics.Requests++
	b.metrics.TotalLatency += time.Since(start)
	b.metrics.BytesUploaded += uploaded
	b.metrics.BytesDownloaded += downloaded
	if err != nil && !isErrorType[*s3types.NoSuchKey](err) {
		b.metrics.Errors++
		b.metrics.LastError = err.Error()
		b.metrics.LastErrorTime = time.Now()
	}
}

func (b *Backend) translateError(err error, operation, path string) error {
	switch {
	case isErrorType[*s3types.NoSuchKey](err):
		return errors.NotFound(path).WithOperation(operation)
	case isErrorType[*s3types.NoSuchBucket](err):
		return errors.Errorf(errors.ErrCodeStorageRead, "bucket not found: %s", b.config.Bucket).
			WithOperation(operation).WithCause(err)
	case operation == "put" || operation == "delete":
		return errors.NewError(errors.ErrCodeStorageWrite, "").WithOperation(operation).WithPath(path).WithCause(err)
	default:
		return errors.NewError(errors.ErrCodeStorageRead, "").WithOperation(operation).WithPath(path).WithCause(err)
	}
}

// isErrorType checks if an error is of a specific type
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
