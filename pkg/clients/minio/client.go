// Package minio stores component properties as YAML objects in an
// S3-compatible bucket.
//
// Each component owns one object, keyed by the configured prefix and the
// component's fully-qualified name:
//
//	components/root.db.yaml
//	    dsn: postgres://db
//	    pool: "8"
//
// [Client] is a traced wrapper over the object operations the store needs
// and [PropertyStore] implements the properties.Store contract on top of it.
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-runtime/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope of this package.
const tracerName = "github.com/StricklySoft/stricklysoft-runtime/pkg/clients/minio"

// ObjectStore is the subset of object operations the client uses.
// [NewClient] adapts a *minio.Client to it; tests supply mocks.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// sdkStore adapts *minio.Client, whose GetObject returns a concrete type.
type sdkStore struct {
	*minio.Client
}

func (s sdkStore) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return s.Client.GetObject(ctx, bucketName, objectName, opts)
}

var _ ObjectStore = sdkStore{}

// Client is a traced object storage client bound to one bucket. It is safe
// for concurrent use.
type Client struct {
	store  ObjectStore
	config *Config
	tracer trace.Tracer
}

// NewClient creates a client and verifies that the server answers. When
// cfg.CreateBucket is set a missing bucket is created.
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: the server is unreachable
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation, "minio: invalid configuration")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration, "minio: failed to create client")
	}

	c := NewFromStore(sdkStore{mc}, &cfg)
	if err := c.EnsureBucket(ctx); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency, "minio: failed to connect to server")
	}
	return c, nil
}

// NewFromStore wraps an existing store. cfg may be nil, in which case the
// defaults apply.
func NewFromStore(store ObjectStore, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	return &Client{
		store:  store,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
}

// Config returns the client's configuration.
func (c *Client) Config() *Config { return c.config }

// EnsureBucket checks that the bucket exists and, if CreateBucket is set,
// creates it. A missing bucket without CreateBucket is not an error; reads
// then find nothing and writes fail.
func (c *Client) EnsureBucket(ctx context.Context) error {
	bucket := c.config.Bucket
	ctx, span := c.startSpan(ctx, "EnsureBucket", "BucketExists "+bucket)
	exists, err := c.store.BucketExists(ctx, bucket)
	if err == nil && !exists && c.config.CreateBucket {
		err = c.store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: c.config.Region})
	}
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: bucket check failed")
	}
	return nil
}

// Get returns the content of the object at key. found is false when the
// object or its bucket does not exist.
func (c *Client) Get(ctx context.Context, key string) (data []byte, found bool, err error) {
	ctx, span := c.startSpan(ctx, "GetObject", "GET "+key)
	defer func() { finishSpan(span, err) }()

	obj, err := c.store.GetObject(ctx, c.config.Bucket, key, minio.GetObjectOptions{})
	if err == nil {
		// Object reads are lazy; a missing key surfaces here.
		data, err = io.ReadAll(obj)
		_ = obj.Close()
	}
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, wrapError(err, "minio: get object failed")
	}
	return data, true, nil
}

// Put writes data to the object at key.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, span := c.startSpan(ctx, "PutObject", "PUT "+key)
	_, err := c.store.PutObject(ctx, c.config.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: put object failed")
	}
	return nil
}

// Remove deletes the object at key. Removing a missing object succeeds.
func (c *Client) Remove(ctx context.Context, key string) error {
	ctx, span := c.startSpan(ctx, "RemoveObject", "DELETE "+key)
	err := c.store.RemoveObject(ctx, c.config.Bucket, key, minio.RemoveObjectOptions{})
	finishSpan(span, err)
	if err != nil && !isNotFound(err) {
		return wrapError(err, "minio: remove object failed")
	}
	return nil
}

// List returns the keys under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, span := c.startSpan(ctx, "ListObjects", "LIST "+prefix)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	var err error
	for info := range c.store.ListObjects(ctx, c.config.Bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			err = info.Err
			break
		}
		keys = append(keys, info.Key)
	}
	finishSpan(span, err)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, wrapError(err, "minio: list objects failed")
	}
	return keys, nil
}

// Health probes the bucket, applying [DefaultHealthTimeout] when ctx has
// no deadline.
func (c *Client) Health(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}
	ctx, span := c.startSpan(ctx, "Health", "BucketExists "+c.config.Bucket)
	_, err := c.store.BucketExists(ctx, c.config.Bucket)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, "minio: health check failed")
	}
	return nil
}

// Close is a no-op; the SDK client holds no pooled state.
func (c *Client) Close() {}

func (c *Client) startSpan(ctx context.Context, operation, statement string) (context.Context, trace.Span) {
	ctx, span := c.tracer.Start(ctx, "minio."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", c.config.Bucket),
		attribute.String("db.statement", truncateStatement(statement)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil && !isNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return true
	}
	return false
}

// wrapError classifies a storage error. A deadline is a retryable storage
// timeout; everything else is a storage failure.
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutStorage, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalStorage, message)
}
