package storage

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"
)

// uploadAPI is the part of the Cloudinary upload API this package uses.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// Cloudinary stores files in a Cloudinary cloud. Folder prefixes every upload.
type Cloudinary struct {
	Folder string
	api    uploadAPI
}

// NewCloudinary creates a Cloudinary store from account credentials.
func NewCloudinary(cloudName, apiKey, apiSecret, folder string) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary: init")
	}
	return &Cloudinary{Folder: folder, api: &cld.Upload}, nil
}

// publicIDFor keeps the extension of raw files so PDFs are served with their type.
func publicIDFor(name string, kind Kind) string {
	if kind == KindImage {
		return strings.TrimSuffix(name, path.Ext(name))
	}
	return name
}

// Upload stores data as {kind} under Folder/folder.
func (c *Cloudinary) Upload(ctx context.Context, folder, name string, data []byte, kind Kind) (Stored, error) {
	if kind == "" {
		kind = KindRaw
	}
	params := uploader.UploadParams{
		PublicID:     publicIDFor(name, kind),
		Folder:       strings.Trim(path.Join(c.Folder, folder), "/"),
		ResourceType: string(kind),
		Overwrite:    api.Bool(false),
	}
	res, err := c.api.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return Stored{}, errors.Wrap(err, "cloudinary: upload")
	}
	if res.Error.Message != "" {
		return Stored{}, errors.Errorf("cloudinary: upload rejected: %s", res.Error.Message)
	}
	url := res.SecureURL
	if url == "" {
		url = res.URL
	}
	return Stored{URL: url, PublicID: res.PublicID}, nil
}

// Delete destroys an uploaded asset by public id. An asset that is already gone is not an error.
func (c *Cloudinary) Delete(ctx context.Context, publicID string, kind Kind) error {
	if publicID == "" {
		return nil
	}
	if kind == "" {
		kind = KindRaw
	}
	res, err := c.api.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: string(kind),
		Invalidate:   api.Bool(true),
	})
	if err != nil {
		return errors.Wrap(err, "cloudinary: destroy")
	}
	if res.Error.Message != "" {
		return errors.Errorf("cloudinary: destroy rejected: %s", res.Error.Message)
	}
	if res.Result != "" && res.Result != "ok" && res.Result != "not found" {
		return errors.Errorf("cloudinary: destroy returned %q", res.Result)
	}
	return nil
}
