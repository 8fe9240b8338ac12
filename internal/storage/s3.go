package storage

import (
	"alcyxob/fitness-sync/internal/config"
	"alcyxob/fitness-sync/internal/domain"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3AssetStore implements AssetStore using an S3-compatible backend.
type s3AssetStore struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
	baseURL       string // scheme://host[/bucket] that object URLs are built from
}

// NewS3AssetStore creates a new S3 asset store.
func NewS3AssetStore(cfg config.S3Config) (AssetStore, error) {
	// Custom resolver for S3-compatible endpoints (MinIO, Spaces)
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           endpointURL(cfg),
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsSDKConfig, err := awsCfg.LoadDefaultConfig(context.TODO(),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsCfg.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		log.Printf("ERROR: Failed to load AWS SDK config for S3: %v", err)
		return nil, err
	}

	// Path-style addressing is required by most S3-compatible services.
	s3Client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})

	log.Printf("S3 asset store initialized for endpoint: %s, bucket: %s", cfg.Endpoint, cfg.BucketName)

	return &s3AssetStore{
		client:        s3Client,
		presignClient: s3.NewPresignClient(s3Client),
		bucketName:    cfg.BucketName,
		baseURL:       objectBaseURL(cfg),
	}, nil
}

func endpointURL(cfg config.S3Config) string {
	if strings.Contains(cfg.Endpoint, "://") {
		return cfg.Endpoint
	}
	if cfg.UseSSL {
		return "https://" + cfg.Endpoint
	}
	return "http://" + cfg.Endpoint
}

func objectBaseURL(cfg config.S3Config) string {
	if cfg.Endpoint != "" {
		return strings.TrimRight(endpointURL(cfg), "/") + "/" + cfg.BucketName
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.BucketName, cfg.Region)
}

// Upload puts the object under a digest-derived key so a retried upload of the
// same image overwrites rather than duplicates.
func (s *s3AssetStore) Upload(ctx context.Context, family domain.Family, remoteID string, data []byte, contentType string) (string, error) {
	key, err := ObjectKey(family, remoteID, data)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		log.Printf("ERROR: Failed to upload object '%s' to bucket '%s': %v", key, s.bucketName, err)
		return "", err
	}

	log.Printf("INFO: Uploaded object '%s' (%d bytes) to bucket '%s'", key, len(data), s.bucketName)
	return s.baseURL + "/" + key, nil
}

func (s *s3AssetStore) Download(ctx context.Context, rawURL string) ([]byte, error) {
	key, err := s.keyFromURL(rawURL)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrObjectNotFound
		}
		log.Printf("ERROR: Failed to download object '%s' from bucket '%s': %v", key, s.bucketName, err)
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// PresignDownload creates a temporary URL for downloading (GET).
func (s *s3AssetStore) PresignDownload(ctx context.Context, rawURL string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultPresignedURLExpiry
	}
	key, err := s.keyFromURL(rawURL)
	if err != nil {
		return "", err
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		log.Printf("ERROR: Failed to generate presigned GET URL for key '%s': %v", key, err)
		return "", err
	}
	return req.URL, nil
}

func (s *s3AssetStore) keyFromURL(rawURL string) (string, error) {
	return keyFromURL(s.baseURL, rawURL)
}

// keyFromURL strips the store's base URL from an object URL. Only URLs under
// baseURL are accepted.
func keyFromURL(baseURL, rawURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrForeignURL, err)
	}
	if !strings.EqualFold(u.Host, base.Host) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	prefix := strings.TrimRight(base.Path, "/") + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	key := strings.TrimPrefix(u.Path, prefix)
	if key == "" {
		return "", fmt.Errorf("%w: %s", ErrForeignURL, rawURL)
	}
	return key, nil
}
