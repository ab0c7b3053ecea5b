// Package s3util delivers finished archives to S3 and produces shareable
// presigned links. Upload is optional; local output never touches AWS.
package s3util

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// archiveContentType is the content type set on uploaded archives.
const archiveContentType = "application/zip"

// NewClient loads the default AWS configuration and returns an S3 client.
func NewClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// UploadArchive streams a finished archive to s3://bucket/key.
func UploadArchive(ctx context.Context, client *s3.Client, bucket, key string, body io.Reader) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Msg("Uploading archive to S3")

	contentType := archiveContentType
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        body,
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("upload archive to S3: %w", err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Msg("Archive uploaded to S3")
	return nil
}

// PresignArchive creates a pre-signed GET URL for an uploaded archive, with
// a Content-Disposition that makes browsers save it under filename.
func PresignArchive(ctx context.Context, presigner *s3.PresignClient, bucket, key, filename string, expiry time.Duration) (string, error) {
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     &bucket,
		Key:                        &key,
		ResponseContentDisposition: aws.String(fmt.Sprintf(`attachment; filename="%s"`, filename)),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
