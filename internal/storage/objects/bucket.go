// Package objects wraps the MinIO bucket that receives catalog uploads.
package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/notification"

	"github.com/JonMunkholm/catalogimport/internal/config"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// CreatedEvents is the notification filter for new uploads.
var CreatedEvents = []string{"s3:ObjectCreated:*"}

// Object describes one stored object.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	// ETag changes whenever the object is overwritten.
	ETag string
}

// Event is an object-created notification.
type Event struct {
	Bucket string
	Key    string
	Size   int64
}

// Bucket is a single MinIO bucket.
type Bucket struct {
	client *minio.Client
	name   string
}

// New connects to the configured endpoint. It does not touch the network;
// call EnsureBucket to verify connectivity.
func New(cfg config.StorageConfig) (*Bucket, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Bucket{client: client, name: cfg.Bucket}, nil
}

// Name is the bucket name.
func (b *Bucket) Name() string { return b.name }

// EnsureBucket creates the bucket when it does not exist yet.
func (b *Bucket) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.name, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", b.name, err)
	}
	slog.Info("bucket created", "bucket", b.name)
	return nil
}

// Open streams an object and describes the version being read. The caller
// closes the reader.
func (b *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, wrap("open", key, err)
	}
	// GetObject is lazy; Stat surfaces a missing key before parsing starts.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, Object{}, wrap("open", key, err)
	}
	return obj, fromInfo(info), nil
}

// Copy performs a server-side copy within the bucket.
func (b *Bucket) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := b.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: b.name, Object: dstKey},
		minio.CopySrcOptions{Bucket: b.name, Object: srcKey},
	)
	if err != nil {
		return wrap("copy", srcKey, err)
	}
	return nil
}

// Remove deletes an object. Removing a missing key is not an error.
func (b *Bucket) Remove(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{}); err != nil {
		return wrap("remove", key, err)
	}
	return nil
}

// Exists reports whether key is present.
func (b *Bucket) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.name, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, wrap("stat", key, err)
}

// List returns every object under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for info := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return out, wrap("list", prefix, info.Err)
		}
		if strings.HasSuffix(info.Key, "/") {
			continue
		}
		out = append(out, fromInfo(info))
	}
	return out, nil
}

func fromInfo(info minio.ObjectInfo) Object {
	return Object{
		Key:          info.Key,
		Size:         info.Size,
		LastModified: info.LastModified,
		ETag:         strings.Trim(info.ETag, `"`),
	}
}

// PresignPut returns a URL that accepts one PUT of key with the given
// content type until expiry.
func (b *Bucket) PresignPut(ctx context.Context, key string, expiry time.Duration, contentType string) (*url.URL, error) {
	headers := http.Header{}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	u, err := b.client.PresignHeader(ctx, http.MethodPut, b.name, key, expiry, nil, headers)
	if err != nil {
		return nil, wrap("presign", key, err)
	}
	return u, nil
}

// Put uploads r as key.
func (b *Bucket) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.name, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return wrap("put", key, err)
	}
	return nil
}

// Listen streams object-created events under prefix until ctx ends. The
// channel is closed when the subscription stops; a subscription error is
// logged and also closes it.
func (b *Bucket) Listen(ctx context.Context, prefix string) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for info := range b.client.ListenBucketNotification(ctx, b.name, prefix, "", CreatedEvents) {
			if info.Err != nil {
				slog.Error("bucket notification error", "bucket", b.name, "error", info.Err)
				return
			}
			for _, ev := range decodeEvents(info) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// decodeEvents flattens a notification batch. Keys arrive URL-encoded.
func decodeEvents(info notification.Info) []Event {
	out := make([]Event, 0, len(info.Records))
	for _, rec := range info.Records {
		if !strings.HasPrefix(rec.EventName, "s3:ObjectCreated:") {
			continue
		}
		key, err := url.QueryUnescape(rec.S3.Object.Key)
		if err != nil {
			slog.Warn("undecodable object key", "key", rec.S3.Object.Key, "error", err)
			continue
		}
		out = append(out, Event{Bucket: rec.S3.Bucket.Name, Key: key, Size: rec.S3.Object.Size})
	}
	return out
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func wrap(op, key string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}
