// Package s3 keeps blobs in an S3-compatible bucket. The transform tools need
// local files, so every blob that is written or read is also kept in a local
// cache directory; the bucket is the record of truth.
package s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)
	Prefix          string // Optional key prefix, e.g. "uploads/"
	CacheDir        string // Local directory holding cached copies of blobs

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Backend is an S3-compatible implementation of the simplemedia.ContentStore interface
type Backend struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	cache      *fs.Backend
	config     Config
}

// New creates a new S3-compatible storage backend
func New(ctx context.Context, config Config) (*Backend, error) {
	if config.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.CacheDir == "" {
		return nil, errors.New("cache directory is required")
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	cache, err := fs.New(fs.Config{BaseDir: config.CacheDir})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	// Set up AWS config
	loadOptions := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(config.Region)}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Custom endpoint for S3-compatible services (MinIO, etc.)
	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}
	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		cache:      cache,
		config:     config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(ctx); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.config.Bucket),
	})
	if err == nil {
		return nil
	}

	// Check if error indicates bucket doesn't exist (handle multiple error types for MinIO compatibility)
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "NoSuchBucket") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.config.Bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	if _, err := b.client.CreateBucket(ctx, createInput); err != nil {
		if hasCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func (b *Backend) key(blob simplemedia.Blob) (string, error) {
	if err := blob.Validate(); err != nil {
		return "", err
	}
	return b.config.Prefix + blob.Name(), nil
}

func hasCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, c := range codes {
		if apiErr.ErrorCode() == c {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey) || hasCode(err, "NotFound", "NoSuchKey")
}

func (b *Backend) remoteExists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to head object: %w", err)
}

// Exists reports whether the blob is cached locally or present in the bucket
func (b *Backend) Exists(ctx context.Context, blob simplemedia.Blob) (bool, error) {
	key, err := b.key(blob)
	if err != nil {
		return false, err
	}
	if ok, err := b.cache.Exists(ctx, blob); err == nil && ok {
		return true, nil
	}
	return b.remoteExists(ctx, key)
}

// Write uploads the staged file unless the object already exists. The
// upload is conditional so two racing writers cannot both report created.
func (b *Backend) Write(ctx context.Context, tempPath string, blob simplemedia.Blob) (bool, error) {
	key, err := b.key(blob)
	if err != nil {
		return false, err
	}

	exists, err := b.remoteExists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		_ = os.Remove(tempPath)
		return false, nil
	}

	file, err := os.Open(tempPath)
	if err != nil {
		return false, fmt.Errorf("failed to open staged file: %w", err)
	}
	_, err = b.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.config.Bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(simplemedia.TypeForExtension(blob.Extension)),
		IfNoneMatch: aws.String("*"),
	})
	file.Close()
	if err != nil {
		if hasCode(err, "PreconditionFailed", "ConditionalRequestConflict") {
			_ = os.Remove(tempPath)
			return false, nil
		}
		return false, fmt.Errorf("failed to upload object: %w", err)
	}

	if _, err := b.cache.Write(ctx, tempPath, blob); err != nil {
		return true, fmt.Errorf("failed to cache blob: %w", err)
	}
	return true, nil
}

// Path returns the local cached copy, downloading it on a miss
func (b *Backend) Path(ctx context.Context, blob simplemedia.Blob) (string, error) {
	key, err := b.key(blob)
	if err != nil {
		return "", err
	}
	if ok, _ := b.cache.Exists(ctx, blob); ok {
		return b.cache.Path(ctx, blob)
	}

	tmp, err := b.cache.TempFile(ctx)
	if err != nil {
		return "", err
	}
	_, err = b.downloader.Download(ctx, tmp, &s3.GetObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		if isNotFound(err) {
			return "", &simplemedia.MediaError{Op: "download", Path: key, Err: simplemedia.ErrNotFound}
		}
		return "", fmt.Errorf("failed to download object: %w", err)
	}

	if _, err := b.cache.Write(ctx, tmp.Name(), blob); err != nil {
		return "", err
	}
	return b.cache.Path(ctx, blob)
}

// Delete removes the object and its cached copy
func (b *Backend) Delete(ctx context.Context, blob simplemedia.Blob) error {
	key, err := b.key(blob)
	if err != nil {
		return err
	}
	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return b.cache.Delete(ctx, blob)
}

// TempFile creates a staging file in the cache directory
func (b *Backend) TempFile(ctx context.Context) (*os.File, error) {
	return b.cache.TempFile(ctx)
}
