package copystore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gbtim/internal/gbtim"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store serves copies from an S3-compatible bucket (AWS S3 or MinIO).
// A copy's path maps to an object key by stripping the leading slash and
// prepending the configured prefix.
type S3Store struct {
	host   string
	client *s3.Client
	bucket string
	prefix string
}

// S3Config holds explicit construction parameters. Credentials fall back to
// the default AWS chain when not set.
type S3Config struct {
	Host            string
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string // optional
	SecretAccessKey string // optional
}

// NewS3Store creates an S3-backed copy store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{host: cfg.Host, client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) Host() string {
	return s.host
}

// Open streams the object holding the copy at path.
func (s *S3Store) Open(path string) (io.ReadCloser, error) {
	key := s.prefix + strings.TrimPrefix(path, "/")
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

// Compile-time check that S3Store implements gbtim.CopyStore interface
var _ gbtim.CopyStore = (*S3Store)(nil)
