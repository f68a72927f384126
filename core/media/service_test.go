package media_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/media"
)

const baseURL = "https://cdn.findclass.nz/"

type memStorage struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *memStorage) Put(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	s.types[key] = contentType
	return nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *memStorage) URL(key string) string { return baseURL + key }

func (s *memStorage) Key(url string) (string, bool) {
	if !strings.HasPrefix(url, baseURL) {
		return "", false
	}
	return strings.TrimPrefix(url, baseURL), true
}

var (
	png  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpeg = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
)

func newService(maxSize int64) (*media.Service, *memStorage) {
	conf := new(core.Config)
	conf.Storage.MaxUploadSize = maxSize
	storage := newMemStorage()
	return media.NewService(storage, conf), storage
}

func TestService_UploadImage(t *testing.T) {
	ctx := context.Background()
	svc, storage := newService(64)

	up, err := svc.UploadImage(ctx, media.KindAvatar, "u1", bytes.NewReader(png))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "avatars/u1/"))
	assert.True(t, strings.HasSuffix(up.Key, ".png"))
	assert.Equal(t, baseURL+up.Key, up.URL)
	assert.Equal(t, "image/png", up.ContentType)
	assert.Equal(t, int64(len(png)), up.Size)
	assert.Equal(t, png, storage.objects[up.Key])

	up, err = svc.UploadImage(ctx, media.KindCover, "c1", bytes.NewReader(jpeg))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "covers/c1/"))
	assert.Equal(t, "image/jpeg", storage.types[up.Key])

	tests := []struct {
		name    string
		content []byte
		wantMsg string
	}{
		{"Empty", nil, media.ErrEmptyFile.Error()},
		{"Too large", append(append([]byte{}, png...), make([]byte, 64)...), media.ErrFileTooLarge.Error()},
		{"Not an image", []byte("<html><body>hi</body></html>"), media.ErrUnsupportedType.Error()},
		{"SVG", []byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`), media.ErrUnsupportedType.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UploadImage(ctx, media.KindAvatar, "u1", bytes.NewReader(tt.content))
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, "want a validation error, got %v", err)
			assert.Equal(t, "file", vErr.Fields[0].Field)
			assert.Equal(t, tt.wantMsg, vErr.Fields[0].Error)
		})
	}

	_, err = svc.UploadImage(ctx, "documents", "u1", bytes.NewReader(png))
	assert.Error(t, err)
	assert.Len(t, storage.objects, 2)
}

func TestService_Remove(t *testing.T) {
	ctx := context.Background()
	svc, storage := newService(1 << 10)

	up, err := svc.UploadImage(ctx, media.KindAvatar, "u1", bytes.NewReader(png))
	require.NoError(t, err)

	// empty and foreign URLs are ignored
	require.NoError(t, svc.Remove(ctx, ""))
	require.NoError(t, svc.Remove(ctx, "https://gravatar.com/avatar/abc.png"))
	assert.Len(t, storage.objects, 1)

	require.NoError(t, svc.Remove(ctx, up.URL))
	assert.Empty(t, storage.objects)
}
