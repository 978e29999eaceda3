package storage

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploadAPI struct {
	uploaded      []byte
	uploadParams  uploader.UploadParams
	uploadResult  *uploader.UploadResult
	uploadErr     error
	destroyParams uploader.DestroyParams
	destroyResult *uploader.DestroyResult
}

func (f *fakeUploadAPI) Upload(_ context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.uploadParams = params
	if r, ok := file.(io.Reader); ok {
		f.uploaded, _ = io.ReadAll(r)
	}
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return f.uploadResult, nil
}

func (f *fakeUploadAPI) Destroy(_ context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.destroyParams = params
	return f.destroyResult, nil
}

func TestCloudinaryUploadRawKeepsExtension(t *testing.T) {
	fake := &fakeUploadAPI{uploadResult: &uploader.UploadResult{
		PublicID:  "campus/timetable/tt.pdf",
		SecureURL: "https://res.example/tt.pdf",
	}}
	c := &Cloudinary{Folder: "campus", api: fake}

	stored, err := c.Upload(context.Background(), "timetable", "tt.pdf", []byte("%PDF"), KindRaw)

	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(fake.uploaded))
	assert.Equal(t, "campus/timetable", fake.uploadParams.Folder)
	assert.Equal(t, "raw", fake.uploadParams.ResourceType)
	assert.Equal(t, "tt.pdf", fake.uploadParams.PublicID)
	assert.Equal(t, "https://res.example/tt.pdf", stored.URL)
	assert.Equal(t, "campus/timetable/tt.pdf", stored.PublicID)
}

func TestCloudinaryUploadImageDropsExtension(t *testing.T) {
	fake := &fakeUploadAPI{uploadResult: &uploader.UploadResult{PublicID: "poster", URL: "http://res.example/poster.png"}}
	c := &Cloudinary{api: fake}

	stored, err := c.Upload(context.Background(), "", "poster.png", []byte("x"), KindImage)

	require.NoError(t, err)
	assert.Equal(t, "poster", fake.uploadParams.PublicID)
	assert.Equal(t, "image", fake.uploadParams.ResourceType)
	assert.Empty(t, fake.uploadParams.Folder)
	assert.Equal(t, "http://res.example/poster.png", stored.URL)
}

func TestCloudinaryUploadErrors(t *testing.T) {
	c := &Cloudinary{api: &fakeUploadAPI{uploadErr: errors.New("dial tcp: timeout")}}
	_, err := c.Upload(context.Background(), "", "a.png", []byte("x"), KindImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	c = &Cloudinary{api: &fakeUploadAPI{uploadResult: &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid Signature"}}}}
	_, err = c.Upload(context.Background(), "", "a.png", []byte("x"), KindImage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid Signature")
}

func TestCloudinaryDelete(t *testing.T) {
	fake := &fakeUploadAPI{destroyResult: &uploader.DestroyResult{Result: "not found"}}
	c := &Cloudinary{api: fake}

	require.NoError(t, c.Delete(context.Background(), "campus/notes/n.pdf", KindRaw))
	assert.Equal(t, "campus/notes/n.pdf", fake.destroyParams.PublicID)
	assert.Equal(t, "raw", fake.destroyParams.ResourceType)

	fake.destroyResult = &uploader.DestroyResult{Result: "error"}
	assert.Error(t, c.Delete(context.Background(), "x", KindImage))

	assert.NoError(t, c.Delete(context.Background(), "", KindRaw))
}

func TestKindForFile(t *testing.T) {
	assert.Equal(t, KindImage, KindForFile("poster.JPG"))
	assert.Equal(t, KindRaw, KindForFile("timetable.pdf"))
	assert.Equal(t, KindRaw, KindForFile("noext"))
	assert.Equal(t, "application/pdf", ContentType("x.PDF"))
}
