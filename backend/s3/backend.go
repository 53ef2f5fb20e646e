// Package s3 provides a backend persisting the index in an S3
// compatible object store via the MinIO client.
//
// Layout under the configured key prefix:
//
//	entries/<hex id>                JSON entry document
//	links/<hex parent>/<hex name>   JSON link document
//
// Ids and names are hex encoded because they are opaque byte strings
// and object keys cannot hold arbitrary bytes. Hex preserves byte
// order, so a recursive listing of the links prefix yields slots in
// (parent, name) order.
package s3

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/robinhood/backend"
	"github.com/mwantia/robinhood/data"
)

// Backend stores entry and link documents as JSON objects in a bucket.
type Backend struct {
	mu sync.Mutex

	client *minio.Client
	bucket string
	prefix string
}

// New creates an S3-backed backend against the given endpoint and
// bucket. The bucket must already exist.
func New(ctx context.Context, endpoint, bucket, prefix, accessKey, secretKey string, useSsl bool) (*Backend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, data.ErrNotExist
	}

	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Name returns the identifier name defined for this backend.
func (*Backend) Name() string {
	return "s3"
}

// Capabilities returns the capabilities supported by this backend.
func (*Backend) Capabilities() *backend.Capabilities {
	return &backend.Capabilities{
		Capabilities: []backend.Capability{
			backend.CapabilityScan,
			backend.CapabilityUpdate,
		},
	}
}

// Root returns the backend's root record.
func (b *Backend) Root(ctx context.Context, mask data.FieldMask, statMask data.StatMask) (*data.Record, error) {
	return backend.FilterOne(ctx, b, backend.RootFilter(), mask, statMask)
}

// Close releases the backend instance. The S3 client is stateless,
// there is nothing to tear down.
func (b *Backend) Close(ctx context.Context) error {
	return nil
}

// wrap classifies a storage failure. Throttling (SlowDown) and server
// side errors clear up on their own; network failures likewise. The
// rest is fatal for the operation.
func (b *Backend) wrap(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	var netErr net.Error
	retryable := resp.Code == "SlowDown" ||
		resp.StatusCode >= 500 ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded)
	return &backend.Error{
		Backend:   b.Name(),
		Op:        op,
		Retryable: retryable,
		Err:       err,
	}
}

// Factory constructs s3 backends for "s3:" URIs.
// Example: "s3://accesskey:secretkey@localhost:9000/bucket/prefix?secure=true"
// The first path segment names the bucket, the rest is the key prefix.
type Factory struct{}

func (Factory) Scheme() string {
	return "s3"
}

func (Factory) New(ctx context.Context, uri *backend.RawURI) (backend.Backend, error) {
	accessKey, secretKey, _ := strings.Cut(uri.Userinfo, ":")

	endpoint := uri.Host
	if uri.Port != "" {
		endpoint = uri.Host + ":" + uri.Port
	}

	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(uri.Path, "/"), "/")
	if bucket == "" {
		return nil, data.ErrInvalid
	}

	useSsl := false
	for _, param := range strings.Split(uri.Query, "&") {
		if param == "secure=true" {
			useSsl = true
		}
	}

	return New(ctx, endpoint, bucket, prefix, accessKey, secretKey, useSsl)
}
