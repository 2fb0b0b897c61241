package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver persists raw webhook payloads for audit and replay. Archive
// failures must never block event processing; callers log and move on.
type Archiver interface {
	ArchiveEvent(ctx context.Context, eventID string, body []byte) error
}

type S3ArchiverConfig struct {
	Endpoint        string // S3-compatible endpoint URL
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
}

type s3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver builds an archiver against any S3-compatible store.
func NewS3Archiver(cfg S3ArchiverConfig) (Archiver, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, errors.New("invalid archive configuration: all fields are required")
	}

	sdkCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config for archive: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
	})

	return &s3Archiver{client: client, bucket: cfg.BucketName}, nil
}

func (a *s3Archiver) ArchiveEvent(ctx context.Context, eventID string, body []byte) error {
	key := fmt.Sprintf("webhooks/%s/%s.json", time.Now().UTC().Format("2006-01-02"), eventID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive event %s: %w", eventID, err)
	}
	return nil
}
