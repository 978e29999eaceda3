package storage

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
)

// S3Storage keeps files in an S3 bucket with public-read objects.
type S3Storage struct {
	s3Client *s3.S3
	bucket   string
	region   string
}

// NewS3Storage creates a new S3 storage backend
func NewS3Storage(region, accessKeyID, secretAccessKey, bucket string) (*S3Storage, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKeyID, secretAccessKey, "")
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %v", err)
	}

	return &S3Storage{
		s3Client: s3.New(sess),
		bucket:   bucket,
		region:   region,
	}, nil
}

// Upload stores data under folder/YYYY/MM/DD/<uuid>.<ext>. The object key doubles as the public id.
func (s *S3Storage) Upload(ctx context.Context, folder, name string, data []byte, kind Kind) (Stored, error) {
	now := time.Now()
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		ext = "bin"
	}
	key := fmt.Sprintf("%s/%d/%02d/%02d/%s.%s",
		strings.Trim(folder, "/"),
		now.Year(),
		now.Month(),
		now.Day(),
		uuid.New().String()[:16],
		ext,
	)

	_, err := s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ContentType(name)),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return Stored{}, fmt.Errorf("failed to upload to S3: %v", err)
	}

	return Stored{URL: s.publicURL(key), PublicID: key}, nil
}

// Delete deletes a file from S3
func (s *S3Storage) Delete(ctx context.Context, publicID string, _ Kind) error {
	key := publicID
	if strings.HasPrefix(key, "https://") {
		key = extractKeyFromURL(key)
	}
	if key == "" {
		return fmt.Errorf("invalid file key")
	}

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err
}

func (s *S3Storage) publicURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// extractKeyFromURL extracts the S3 key from a full URL
func extractKeyFromURL(url string) string {
	parts := strings.Split(url, ".amazonaws.com/")
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
