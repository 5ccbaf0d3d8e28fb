// Package archive mirrors committed output and flag files to an
// S3-compatible bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" || strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("access key and secret key are required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// objectAPI is the part of *minio.Client the mirror needs.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Mirror uploads files by name under Config.Prefix. The bucket is created
// on first use.
type Mirror struct {
	cfg     Config
	client  objectAPI
	once    sync.Once
	onceErr error
}

// New validates cfg and builds a MinIO client. No request is made until the
// first Upload.
func New(cfg Config) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Mirror{cfg: cfg, client: client}, nil
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	m.once.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
		if err != nil {
			m.onceErr = fmt.Errorf("bucket exists: %w", err)
			return
		}
		if exists {
			return
		}
		if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
			m.onceErr = fmt.Errorf("make bucket %s: %w", m.cfg.Bucket, err)
		}
	})
	return m.onceErr
}

// Key returns the object key for a file name.
func (m *Mirror) Key(name string) string {
	return path.Join(m.cfg.Prefix, name)
}

// Upload copies each named file in dir to the bucket. Missing files are
// skipped.
func (m *Mirror) Upload(ctx context.Context, dir string, names []string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if err := m.put(ctx, filepath.Join(dir, name), m.Key(name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mirror) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}

	up, err := m.client.PutObject(ctx, m.cfg.Bucket, key, f, info.Size(), minio.PutObjectOptions{ContentType: contentType(file)})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	slog.Debug("archived", "bucket", m.cfg.Bucket, "key", key, "size", up.Size, "etag", up.ETag)
	return nil
}

func contentType(file string) string {
	ext := filepath.Ext(file)
	if ext == ".txt" {
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
