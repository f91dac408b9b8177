package r2

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-upload/pkg/simpleupload"
)

// StorageHost is the Cloudflare R2 S3 API host suffix
const StorageHost = "r2.cloudflarestorage.com"

var (
	// ErrMissingAccount is returned when neither an account ID nor a custom endpoint is configured
	ErrMissingAccount = errors.New("r2: account id is required")

	// ErrMissingBucket is returned when no bucket is configured
	ErrMissingBucket = errors.New("r2: bucket name is required")
)

// Config options for the R2 backend
type Config struct {
	AccountID       string // Cloudflare account ID
	AccessKeyID     string // R2 access key ID
	SecretAccessKey string // R2 secret access key
	Bucket          string // R2 bucket name
	Region          string // Signing region (default: "auto")

	// Endpoint overrides https://<account>.r2.cloudflarestorage.com, e.g. for MinIO
	Endpoint     string
	UsePathStyle bool
}

// Backend signs presigned POST policies against Cloudflare R2 through the
// S3-compatible API. Credentials are not checked until a policy is signed.
type Backend struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	config        Config
}

var _ simpleupload.PolicySigner = (*Backend)(nil)

// New creates an R2 backend. Empty credentials are accepted here and surface
// as signing errors when the first policy is requested.
func New(config Config) (*Backend, error) {
	if config.Region == "" {
		config.Region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(config.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			config.AccessKeyID,
			config.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := config.endpoint()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = config.UsePathStyle
	})

	return &Backend{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		config:        config,
	}, nil
}

func (c Config) endpoint() string {
	if c.Endpoint != "" {
		return strings.TrimSuffix(c.Endpoint, "/")
	}
	return fmt.Sprintf("https://%s.%s", c.AccountID, StorageHost)
}

func (c Config) check() error {
	if c.AccountID == "" && c.Endpoint == "" {
		return ErrMissingAccount
	}
	if c.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}

// Bucket returns the configured bucket name
func (b *Backend) Bucket() string {
	return b.config.Bucket
}

// ObjectURL returns the bucket-host URL of key. With a custom endpoint the
// path-style form <endpoint>/<bucket>/<key> is used.
func (b *Backend) ObjectURL(key string) string {
	if b.config.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", b.config.endpoint(), b.config.Bucket, key)
	}
	return fmt.Sprintf("https://%s.%s.%s/%s", b.config.Bucket, b.config.AccountID, StorageHost, key)
}

// SignPolicy returns a presigned POST policy for req
func (b *Backend) SignPolicy(ctx context.Context, req simpleupload.PolicyRequest) (*simpleupload.SignedPolicy, error) {
	if err := b.config.check(); err != nil {
		return nil, err
	}

	bucket := req.Bucket
	if bucket == "" {
		bucket = b.config.Bucket
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(req.Key),
		ContentType: aws.String(req.ContentType),
	}

	result, err := b.presignClient.PresignPostObject(ctx, input, func(opts *s3.PresignPostOptions) {
		opts.Expires = req.Expires
		opts.Conditions = []interface{}{
			[]interface{}{"content-length-range", req.MinSize, req.MaxSize},
			[]interface{}{"starts-with", "$Content-Type", req.ContentTypePrefix},
		}
	})
	if err != nil {
		return nil, describe(err)
	}

	fields := make(map[string]string, len(result.Values)+1)
	for k, v := range result.Values {
		fields[k] = v
	}
	if _, ok := fields["Content-Type"]; !ok {
		fields["Content-Type"] = req.ContentType
	}

	return &simpleupload.SignedPolicy{
		URL:    result.URL,
		Fields: fields,
	}, nil
}

// CheckBucket verifies the credentials can reach the bucket
func (b *Backend) CheckBucket(ctx context.Context) error {
	if err := b.config.check(); err != nil {
		return err
	}
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.config.Bucket),
	})
	if err != nil {
		return describe(err)
	}
	return nil
}

// describe prefixes API errors with their service error code
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("r2 %s: %s: %w", apiErr.ErrorCode(), apiErr.ErrorMessage(), err)
	}
	return fmt.Errorf("r2: %w", err)
}
