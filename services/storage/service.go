package storage

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/interfaces"
	"github.com/payradar/payradar/internal/tracing"
	"github.com/payradar/payradar/services/storage/aws_client"
)

// objectStorageService offloads attachment payloads to an S3-compatible
// bucket. Cloudflare R2 is the deployed target; plain S3 works with the
// same client.
type objectStorageService struct {
	client aws_client.S3Client
	bucket string
}

// NewR2StorageService builds a StorageService against Cloudflare R2.
func NewR2StorageService(cfg *config.R2StorageConfig) interfaces.StorageService {
	client := aws_client.NewS3Client(&aws.Config{
		Endpoint:         aws.String("https://" + cfg.AccountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	return &objectStorageService{client: client, bucket: cfg.AttachmentBucket}
}

func (s *objectStorageService) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "objectStorageService.Upload")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	input := s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if err := s.client.Upload(ctx, input); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *objectStorageService) Download(ctx context.Context, key string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "objectStorageService.Download")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	data, err := s.client.Download(ctx, s.bucket, key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return data, nil
}

func (s *objectStorageService) Delete(ctx context.Context, key string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "objectStorageService.Delete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key)

	if err := s.client.Delete(ctx, s.bucket, key); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
