// Package blobstore offloads oversized session metadata, PDF artifacts, and
// extracted photos to S3-compatible object storage, content-addressed by
// SHA-256 so repeated uploads of identical content dedupe for free.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	cfgpkg "github.com/cvwizard/backend/internal/config"
	"github.com/cvwizard/backend/internal/model"
)

// ErrNotFound is returned when a referenced blob does not exist. Per the
// session store's "stale refs are tolerated on read" rule, callers decide
// whether this is fatal.
var ErrNotFound = errors.New("blobstore: object not found")

// Store is the content-addressed blob storage interface. Put is idempotent:
// uploading the same bytes to the same container twice returns the same
// BlobRef without a second network write when dedupe is honored by the
// caller (callers should check Exists before Put on the hot path).
type Store interface {
	Put(ctx context.Context, container string, data []byte, contentType string) (model.BlobRef, error)
	Get(ctx context.Context, ref model.BlobRef) ([]byte, error)
	Exists(ctx context.Context, ref model.BlobRef) (bool, error)
	Delete(ctx context.Context, ref model.BlobRef) error
}

// s3Store is the production Store backed by aws-sdk-go-v2.
type s3Store struct {
	client *s3.Client
}

// New builds an s3-backed Store from BlobstoreConfig.
func New(ctx context.Context, cfg cfgpkg.BlobstoreConfig) (Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Store{client: client}, nil
}

func (s *s3Store) Put(ctx context.Context, container string, data []byte, contentType string) (model.BlobRef, error) {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	blobName := digest

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(container),
		Key:         aws.String(blobName),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return model.BlobRef{}, fmt.Errorf("put object %s/%s: %w", container, blobName, err)
	}

	return model.BlobRef{
		Container:   container,
		BlobName:    blobName,
		SHA256:      digest,
		ContentType: contentType,
	}, nil
}

func (s *s3Store) Get(ctx context.Context, ref model.BlobRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.BlobName),
	})
	if err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s/%s: %w", ref.Container, ref.BlobName, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("read object body %s/%s: %w", ref.Container, ref.BlobName, err)
	}
	return buf.Bytes(), nil
}

func (s *s3Store) Exists(ctx context.Context, ref model.BlobRef) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.BlobName),
	})
	if err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return false, nil
		}
		return false, fmt.Errorf("head object %s/%s: %w", ref.Container, ref.BlobName, err)
	}
	return true, nil
}

func (s *s3Store) Delete(ctx context.Context, ref model.BlobRef) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.Container),
		Key:    aws.String(ref.BlobName),
	})
	if err != nil {
		return fmt.Errorf("delete object %s/%s: %w", ref.Container, ref.BlobName, err)
	}
	return nil
}
