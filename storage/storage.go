package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"campusdesk_go/config"
)

// Kind selects how a provider stores a file. PDFs are raw, pictures are images.
type Kind string

const (
	KindRaw   Kind = "raw"
	KindImage Kind = "image"
)

// Stored describes an uploaded object.
type Stored struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// FileStore is the blob storage used for timetables, notes, event images and form attachments.
type FileStore interface {
	Upload(ctx context.Context, folder, name string, data []byte, kind Kind) (Stored, error)
	Delete(ctx context.Context, publicID string, kind Kind) error
}

// NewFromConfig builds the FileStore selected by STORAGE_DRIVER.
func NewFromConfig(cfg *config.Config) (FileStore, error) {
	switch cfg.StorageDriver {
	case "", "cloudinary":
		if cfg.CloudinaryCloudName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "" {
			return nil, fmt.Errorf("cloudinary storage selected but CLOUDINARY_* credentials are missing")
		}
		cld, err := NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			return nil, err
		}
		return cld, nil
	case "s3":
		s3, err := NewS3Storage(cfg.AWSRegion, cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, cfg.S3BucketName)
		if err != nil {
			return nil, err
		}
		return s3, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

// KindForFile picks image storage for picture extensions and raw storage for everything else.
func KindForFile(filename string) Kind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "jpg", "jpeg", "png", "gif", "webp", "bmp":
		return KindImage
	default:
		return KindRaw
	}
}

// ContentType returns the MIME type for the file extension
func ContentType(filename string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
