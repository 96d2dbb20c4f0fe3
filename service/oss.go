package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"VideoFactory-server/config"
	"VideoFactory-server/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignExpiry = 72 * time.Hour

// Uploader stores generated bytes and returns a URL renderers can fetch.
type Uploader interface {
	Upload(ctx context.Context, reader io.Reader, objectName string, size int64) (string, error)
}

// ObjectStore is the MinIO bucket holding voiceovers, mirrored clips and
// final renders.
type ObjectStore struct {
	client *minio.Client
	bucket string
	domain string
	http   *http.Client
	log    *logger.Logger
}

func NewObjectStore(ctx context.Context, cfg config.Config, log *logger.Logger) (*ObjectStore, error) {
	mc := cfg.MinIO
	client, err := minio.New(mc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mc.AccessKey, mc.SecretKey, ""),
		Secure: mc.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}
	s := &ObjectStore{
		client: client,
		bucket: mc.Bucket,
		domain: strings.TrimRight(mc.Domain, "/"),
		http:   &http.Client{Timeout: 5 * time.Minute},
		log:    log.Component("ObjectStore"),
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	s.log.Info("minio connected", "endpoint", mc.Endpoint, "bucket", mc.Bucket)
	return s, nil
}

func (s *ObjectStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	s.log.Info("bucket created", "bucket", s.bucket)
	return nil
}

func contentTypeFor(objectName string) string {
	switch strings.ToLower(filepath.Ext(objectName)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	}
	return "application/octet-stream"
}

// Upload puts reader under objectName; size -1 means unknown. The URL is
// public when a domain is configured, presigned otherwise.
func (s *ObjectStore) Upload(ctx context.Context, reader io.Reader, objectName string, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentTypeFor(objectName),
	})
	if err != nil {
		return "", fmt.Errorf("upload to minio: %w", err)
	}
	s.log.Debug("object uploaded", "object", objectName)
	if s.domain != "" {
		return s.domain + "/" + s.bucket + "/" + objectName, nil
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, presignExpiry, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("presign url: %w", err)
	}
	return presigned.String(), nil
}

// Mirror downloads sourceURL and re-uploads it under objectName. A source
// that already is objectName in this bucket is returned as is.
func (s *ObjectStore) Mirror(ctx context.Context, sourceURL, objectName string) (string, error) {
	if s.holds(sourceURL, objectName) {
		s.log.Debug("object already in bucket, skipping mirror", "object", objectName)
		return sourceURL, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download status: %d", resp.StatusCode)
	}
	return s.Upload(ctx, resp.Body, objectName, resp.ContentLength)
}

// holds reports whether rawURL addresses objectName in this bucket, either
// through the public domain or the minio endpoint.
func (s *ObjectStore) holds(rawURL, objectName string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := "/" + s.bucket + "/" + strings.TrimPrefix(objectName, "/")
	if s.domain != "" {
		if d, err := url.Parse(s.domain); err == nil && d.Host == u.Host && strings.TrimRight(d.Path, "/")+path == u.Path {
			return true
		}
	}
	ep := s.client.EndpointURL()
	return ep != nil && ep.Host == u.Host && u.Path == path
}
