// Package media validates image uploads and hands them to the object storage.
package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
)

// Upload kinds
const (
	KindAvatar = "avatars"
	KindCover  = "covers"
)

var (
	// allowed image content types and their extensions
	imageTypes = map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	}

	ErrFileTooLarge      = errors.New("file is too large")
	ErrUnsupportedType   = errors.New("only jpeg, png and webp images are allowed")
	ErrEmptyFile         = errors.New("file is empty")
	errUnknownUploadKind = errors.New("unknown upload kind")
)

// Storage is an object storage serving its objects under public URLs.
type Storage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	// URL returns the public URL of key.
	URL(key string) string
	// Key returns the key of a public URL, false if the URL is not served by the storage.
	Key(url string) (string, bool)
}

type Upload struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Service struct {
	storage Storage
	maxSize int64
}

func NewService(storage Storage, conf *core.Config) *Service {
	return &Service{storage: storage, maxSize: conf.Storage.MaxUploadSize}
}

func (svc *Service) MaxSize() int64 { return svc.maxSize }

// UploadImage stores the image read from r under <kind>/<ownerID>/<uuid><ext>.
// The content type is sniffed from the content, never trusted from the client.
func (svc *Service) UploadImage(ctx context.Context, kind, ownerID string, r io.Reader) (Upload, error) {
	if kind != KindAvatar && kind != KindCover {
		return Upload{}, errors.Wrap(errUnknownUploadKind, kind)
	}

	// read one byte more than allowed to detect oversized files
	data, err := io.ReadAll(io.LimitReader(r, svc.maxSize+1))
	if err != nil {
		return Upload{}, errors.Wrap(err, "reading upload")
	}
	if len(data) == 0 {
		return Upload{}, core.NewFieldError("file", ErrEmptyFile.Error())
	}
	if int64(len(data)) > svc.maxSize {
		return Upload{}, core.NewFieldError("file", ErrFileTooLarge.Error())
	}

	contentType := http.DetectContentType(data)
	ext, ok := imageTypes[contentType]
	if !ok {
		return Upload{}, core.NewFieldError("file", ErrUnsupportedType.Error())
	}

	key := path.Join(kind, ownerID, uuid.NewString()+ext)
	size := int64(len(data))
	if err = svc.storage.Put(ctx, key, bytes.NewReader(data), size, contentType); err != nil {
		return Upload{}, errors.Wrap(err, "storing upload")
	}
	return Upload{Key: key, URL: svc.storage.URL(key), ContentType: contentType, Size: size}, nil
}

// Remove deletes the object served under url. Empty and foreign URLs are ignored.
func (svc *Service) Remove(ctx context.Context, url string) error {
	if strings.TrimSpace(url) == "" {
		return nil
	}
	key, ok := svc.storage.Key(url)
	if !ok {
		return nil
	}
	return errors.Wrap(svc.storage.Delete(ctx, key), "deleting upload")
}
