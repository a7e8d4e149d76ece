package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/RightsTracker/NuGetGallery/internal/common"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const contentType = "application/octet-stream"

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the subset of the S3 client used by S3BlobStore.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Options configures the S3 client and the two buckets.
type S3Options struct {
	Region           string
	AccessKey        string
	SecretKey        string
	BaseEndpoint     string
	ValidationBucket string
	PublicBucket     string
}

type S3BlobStore struct {
	api              ObjectAPI
	validationBucket string
	publicBucket     string
}

// NewS3BlobStore builds a store over an existing client.
func NewS3BlobStore(api ObjectAPI, validationBucket, publicBucket string) *S3BlobStore {
	return &S3BlobStore{api: api, validationBucket: validationBucket, publicBucket: publicBucket}
}

// NewS3Client creates an S3 client with static credentials. Path-style
// addressing is used when a custom endpoint (e.g. MinIO) is configured.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (s *S3BlobStore) SaveValidationFile(ctx context.Context, id, normalizedVersion string, body io.ReadSeeker) error {
	return s.put(ctx, s.validationBucket, FileName(id, normalizedVersion), body, false)
}

func (s *S3BlobStore) SavePublicFile(ctx context.Context, id, normalizedVersion string, body io.ReadSeeker, overwrite bool) error {
	return s.put(ctx, s.publicBucket, FileName(id, normalizedVersion), body, overwrite)
}

func (s *S3BlobStore) DeleteValidationFile(ctx context.Context, id, normalizedVersion string) error {
	return s.delete(ctx, s.validationBucket, FileName(id, normalizedVersion))
}

func (s *S3BlobStore) DeletePublicFile(ctx context.Context, id, normalizedVersion string) error {
	return s.delete(ctx, s.publicBucket, FileName(id, normalizedVersion))
}

func (s *S3BlobStore) put(ctx context.Context, bucket, key string, body io.ReadSeeker, overwrite bool) error {
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", key, err)
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if !overwrite {
		in.IfNoneMatch = aws.String("*")
	}

	if _, err := s.api.PutObject(ctx, in); err != nil {
		if isAlreadyExists(err) {
			return fmt.Errorf("%s/%s: %w", bucket, key, common.ErrBlobAlreadyExists)
		}
		return fmt.Errorf("put %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3BlobStore) delete(ctx context.Context, bucket, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusPreconditionFailed {
		return true
	}
	return false
}
