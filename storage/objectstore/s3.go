// Package objectstore implements media.Storage on S3-compatible services and on the local filesystem.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/media"
)

// S3Client defines the S3 operations used by s3Storage.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type s3Storage struct {
	client  S3Client
	bucket  string
	baseURL string // with trailing "/"
}

var _ media.Storage = (*s3Storage)(nil)

// NewS3Client builds an S3 client from the storage config; static credentials are optional.
func NewS3Client(ctx context.Context, conf *core.Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.Storage.Region)}
	if conf.Storage.AccessKeyID != "" && conf.Storage.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.Storage.AccessKeyID, conf.Storage.SecretKey, ""),
		))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading aws config")
	}
	return s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if conf.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.Storage.Endpoint)
		}
		o.UsePathStyle = conf.Storage.ForcePathStyle
	}), nil
}

// NewS3Storage returns a media.Storage writing to the configured bucket.
// Without a base URL, objects are served from the endpoint or the AWS virtual host.
func NewS3Storage(client S3Client, conf *core.Config) (media.Storage, error) {
	if conf.Storage.Bucket == "" {
		return nil, errors.New("s3 storage: bucket is required")
	}
	baseURL := conf.Storage.BaseURL
	if baseURL == "" {
		if conf.Storage.Endpoint != "" {
			baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(conf.Storage.Endpoint, "/"), conf.Storage.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", conf.Storage.Bucket, conf.Storage.Region)
		}
	}
	return &s3Storage{
		client:  client,
		bucket:  conf.Storage.Bucket,
		baseURL: strings.TrimSuffix(baseURL, "/") + "/",
	}, nil
}

func (s *s3Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	return errors.Wrapf(err, "putting s3 object %q", key)
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return errors.Wrapf(err, "deleting s3 object %q", key)
}

func (s *s3Storage) URL(key string) string { return s.baseURL + key }

func (s *s3Storage) Key(url string) (string, bool) {
	return keyFromURL(s.baseURL, url)
}

func keyFromURL(baseURL, url string) (string, bool) {
	if !strings.HasPrefix(url, baseURL) {
		return "", false
	}
	key := strings.TrimPrefix(url, baseURL)
	if key == "" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}
