package persist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
// *s3.Client satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store persists snapshots as a single S3 object.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	store := persist.NewS3Store(s3.NewFromConfig(cfg), "my-bucket")
type S3Store struct {
	client S3API
	bucket string
	key    string
	closed atomic.Bool
}

// S3StoreOption configures S3Store behavior.
type S3StoreOption func(*s3StoreConfig)

type s3StoreConfig struct {
	key string
}

// WithObjectKey sets the object key the snapshot is stored under.
// Default: "optimist/snapshot.json".
func WithObjectKey(key string) S3StoreOption {
	return func(c *s3StoreConfig) {
		c.key = key
	}
}

// NewS3Store creates an S3-backed snapshot store. The caller constructs
// and owns the client.
func NewS3Store(client S3API, bucket string, opts ...S3StoreOption) *S3Store {
	cfg := &s3StoreConfig{
		key: "optimist/snapshot.json",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &S3Store{
		client: client,
		bucket: bucket,
		key:    cfg.key,
	}
}

// Save encodes the snapshot and uploads it.
func (s *S3Store) Save(ctx context.Context, snap *Snapshot) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	data, err := Encode(snap)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("optimist: s3 snapshot upload failed: %w", err)
	}
	return nil
}

// Load downloads and decodes the stored snapshot.
func (s *S3Store) Load(ctx context.Context) (*Snapshot, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("optimist: s3 snapshot download failed: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("optimist: s3 snapshot read failed: %w", err)
	}

	return Decode(data)
}

// Close marks the store as closed.
// Note: this does not close the underlying S3 client,
// as it may be shared with other components.
func (s *S3Store) Close() error {
	s.closed.Store(true)
	return nil
}
