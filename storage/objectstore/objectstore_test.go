package objectstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/findclassnz/findclass/core"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.DeleteObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func s3Conf() *core.Config {
	conf := new(core.Config)
	conf.Storage.Bucket = "findclass-media"
	conf.Storage.Region = "ap-southeast-2"
	return conf
}

func TestS3Storage(t *testing.T) {
	ctx := context.Background()
	client := new(mockS3Client)
	storage, err := NewS3Storage(client, s3Conf())
	require.NoError(t, err)

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "findclass-media" && *in.Key == "avatars/u1/a.png" &&
			*in.ContentType == "image/png" && *in.ContentLength == 3
	})).Return(&s3.PutObjectOutput{}, nil).Once()
	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Bucket == "findclass-media" && *in.Key == "avatars/u1/a.png"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	require.NoError(t, storage.Put(ctx, "avatars/u1/a.png", bytes.NewReader([]byte("png")), 3, "image/png"))

	url := storage.URL("avatars/u1/a.png")
	assert.Equal(t, "https://findclass-media.s3.ap-southeast-2.amazonaws.com/avatars/u1/a.png", url)
	key, ok := storage.Key(url)
	require.True(t, ok)
	require.NoError(t, storage.Delete(ctx, key))

	_, ok = storage.Key("https://elsewhere.nz/avatars/u1/a.png")
	assert.False(t, ok)

	client.AssertExpectations(t)
}

func TestNewS3Storage(t *testing.T) {
	_, err := NewS3Storage(new(mockS3Client), new(core.Config))
	assert.Error(t, err, "bucket required")

	conf := s3Conf()
	conf.Storage.Endpoint = "http://localhost:9000/"
	storage, err := NewS3Storage(new(mockS3Client), conf)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/findclass-media/k", storage.URL("k"))

	conf.Storage.BaseURL = "https://cdn.findclass.nz/"
	storage, err = NewS3Storage(new(mockS3Client), conf)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.findclass.nz/k", storage.URL("k"))
}

func TestLocalStorage(t *testing.T) {
	ctx := context.Background()
	conf := new(core.Config)
	conf.Storage.LocalDir = t.TempDir()
	conf.Storage.BaseURL = "http://localhost:8000/media"

	storage, err := NewLocalStorage(conf)
	require.NoError(t, err)

	require.NoError(t, storage.Put(ctx, "covers/c1/x.jpg", bytes.NewReader([]byte("jpeg")), 4, "image/jpeg"))
	f, err := os.Open(filepath.Join(conf.Storage.LocalDir, "covers", "c1", "x.jpg"))
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	_ = f.Close()
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))

	url := storage.URL("covers/c1/x.jpg")
	assert.Equal(t, "http://localhost:8000/media/covers/c1/x.jpg", url)
	key, ok := storage.Key(url)
	require.True(t, ok)
	require.NoError(t, storage.Delete(ctx, key))
	require.NoError(t, storage.Delete(ctx, key), "deleting twice is a no-op")

	assert.Error(t, storage.Put(ctx, "../escape.jpg", bytes.NewReader(nil), 0, "image/jpeg"))
}
