package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"fitloop-server/services/chat-api/internal/config"
)

var errStorageDisabled = errors.New("attachment storage backend is not configured; set CHAT_S3_* to enable uploads")

// S3Storage uploads attachment blobs to S3-compatible storage and hands back
// durable public URLs.
type S3Storage struct {
	bucket         string
	publicEndpoint string
	endpoint       string
	usePathStyle   bool
	client         *s3.Client
	log            zerolog.Logger
	disabled       bool
}

func NewS3Storage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*S3Storage, error) {
	logger := log.With().Str("component", "s3-storage").Logger()
	storage := &S3Storage{
		bucket:         strings.TrimSpace(cfg.S3Bucket),
		publicEndpoint: cfg.S3PublicEndpoint,
		endpoint:       cfg.S3Endpoint,
		usePathStyle:   cfg.S3UsePathStyle,
		log:            logger,
	}

	accessKey := strings.TrimSpace(cfg.S3AccessKeyID)
	secretKey := strings.TrimSpace(cfg.S3SecretKey)
	if storage.bucket == "" || accessKey == "" || secretKey == "" {
		logger.Warn().Msg("CHAT_S3_BUCKET or credentials are not set; attachment uploads will be disabled until configured")
		storage.disabled = true
		return storage, nil
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.S3Endpoint != "" {
			return aws.Endpoint{
				URL:           cfg.S3Endpoint,
				PartitionID:   "aws",
				SigningRegion: cfg.S3Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	storage.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return storage, nil
}

// Upload stores the blob and returns its public URL.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if s.disabled {
		return "", errStorageDisabled
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", err
	}
	return s.objectURL(key), nil
}

// Health performs a simple HeadBucket request.
func (s *S3Storage) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func (s *S3Storage) objectURL(key string) string {
	base := s.publicEndpoint
	if base == "" {
		base = s.endpoint
	}
	base = strings.TrimSuffix(base, "/")
	if s.usePathStyle {
		return fmt.Sprintf("%s/%s/%s", base, s.bucket, key)
	}
	return fmt.Sprintf("%s/%s", base, key)
}
