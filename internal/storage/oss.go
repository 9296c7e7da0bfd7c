package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// OSSStore backs the object-store contract with an Aliyun OSS bucket.
type OSSStore struct {
	bucket *oss.Bucket
}

// OSSOptions configures the OSS connection.
type OSSOptions struct {
	Endpoint        string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
}

// NewOSSStore opens the configured bucket.
func NewOSSStore(opts OSSOptions) (*OSSStore, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: oss bucket is required")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("storage: oss endpoint is required")
	}
	client, err := oss.New(opts.Endpoint, opts.AccessKeyID, opts.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("storage: init oss client: %w", err)
	}
	bucket, err := client.Bucket(opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: open oss bucket: %w", err)
	}
	return &OSSStore{bucket: bucket}, nil
}

func (s *OSSStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	var opts []oss.Option
	if strings.TrimSpace(contentType) != "" {
		opts = append(opts, oss.ContentType(strings.TrimSpace(contentType)))
	}
	if err := s.bucket.PutObject(key, bytes.NewReader(data), opts...); err != nil {
		return "", fmt.Errorf("storage: oss put %q: %w", key, err)
	}
	return Locator(key), nil
}

func (s *OSSStore) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := s.bucket.GetObject(key)
	if err != nil {
		var svcErr oss.ServiceError
		if errors.As(err, &svcErr) && svcErr.StatusCode == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: oss get %q: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("storage: oss read %q: %w", key, err)
	}
	return data, nil
}

func (s *OSSStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	signed, err := s.bucket.SignURL(key, oss.HTTPGet, int64(ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("storage: oss sign %q: %w", key, err)
	}
	return signed, nil
}

func (s *OSSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.bucket.IsObjectExist(key)
	if err != nil {
		return false, fmt.Errorf("storage: oss head %q: %w", key, err)
	}
	return ok, nil
}

func (s *OSSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.bucket.DeleteObject(key); err != nil {
		return fmt.Errorf("storage: oss delete %q: %w", key, err)
	}
	return nil
}

func (s *OSSStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	marker := oss.Marker("")
	for {
		res, err := s.bucket.ListObjects(oss.Prefix(prefix), marker)
		if err != nil {
			return nil, fmt.Errorf("storage: oss list %q: %w", prefix, err)
		}
		for _, obj := range res.Objects {
			keys = append(keys, obj.Key)
		}
		if !res.IsTruncated {
			break
		}
		marker = oss.Marker(res.NextMarker)
	}
	return keys, nil
}

var _ Store = (*OSSStore)(nil)
