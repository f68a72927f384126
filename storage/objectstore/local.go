package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/media"
)

// localStorage writes objects under a directory served by the API under /media.
type localStorage struct {
	dir     string
	baseURL string // with trailing "/"
}

var _ media.Storage = (*localStorage)(nil)

func NewLocalStorage(conf *core.Config) (media.Storage, error) {
	if conf.Storage.LocalDir == "" {
		return nil, errors.New("local storage: directory is required")
	}
	if err := os.MkdirAll(conf.Storage.LocalDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media directory")
	}
	return &localStorage{
		dir:     conf.Storage.LocalDir,
		baseURL: strings.TrimSuffix(conf.Storage.BaseURL, "/") + "/",
	}, nil
}

func (s *localStorage) path(key string) (string, error) {
	p := filepath.Join(s.dir, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(s.dir)+string(os.PathSeparator)) {
		return "", errors.Errorf("invalid key %q", key)
	}
	return p, nil
}

func (s *localStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrap(err, "creating object directory")
	}
	f, err := os.Create(p)
	if err != nil {
		return errors.Wrap(err, "creating object file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "writing object file")
	}
	return errors.Wrap(f.Close(), "closing object file")
}

func (s *localStorage) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing object file")
	}
	return nil
}

func (s *localStorage) URL(key string) string { return s.baseURL + key }

func (s *localStorage) Key(url string) (string, bool) {
	return keyFromURL(s.baseURL, url)
}
