// Package artifacts stores failure diagnostics: page HTML, screenshots and
// a metadata record per failed scenario. Production runs can use an S3
// bucket; local runs write to a directory.
package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned when a requested artifact does not exist.
var ErrObjectNotFound = errors.New("artifacts: object not found")

// Store persists artifacts by key.
type Store interface {
	// Put stores content and returns where it can be found.
	Put(ctx context.Context, key string, content []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3Store keeps artifacts in an S3-compatible bucket.
type S3Store struct {
	s3Client   *s3.Client
	bucketName string
	publicURL  string
}

// S3Config holds the configuration for an S3Store.
type S3Config struct {
	// Endpoint is the S3 endpoint URL. Leave empty to use default AWS S3.
	Endpoint string
	// Region is the AWS region ("auto" for Tigris and R2).
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	// PublicURL, when set, is used to build browsable links to artifacts.
	PublicURL string
	// UsePathStyle is required by some S3-compatible services, gofakes3 included.
	UsePathStyle bool
}

// NewS3Store creates an S3Store with the given configuration.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error

	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	sdkConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(sdkConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3StoreFromClient(s3Client, cfg.BucketName, cfg.PublicURL), nil
}

// NewS3StoreFromClient wraps an existing S3 client.
func NewS3StoreFromClient(s3Client *s3.Client, bucketName, publicURL string) *S3Store {
	return &S3Store{
		s3Client:   s3Client,
		bucketName: bucketName,
		publicURL:  strings.TrimSuffix(publicURL, "/"),
	}
}

// Put implements Store. It returns a public URL when one is configured and
// an s3:// URI otherwise.
func (c *S3Store) Put(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	_, err := c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("artifacts: failed to put object %q: %w", key, err)
	}
	return c.Location(key), nil
}

// Get implements Store. Returns ErrObjectNotFound if the key does not exist.
func (c *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrObjectNotFound
		}
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("artifacts: failed to get object %q: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("artifacts: failed to read object body %q: %w", key, err)
	}
	return data, nil
}

// Location returns where key lives.
func (c *S3Store) Location(key string) string {
	key = strings.TrimPrefix(key, "/")
	if c.publicURL != "" {
		return c.publicURL + "/" + key
	}
	return "s3://" + c.bucketName + "/" + key
}
