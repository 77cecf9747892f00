// Package archive stores character sheet snapshots in S3-compatible object
// storage. Without an endpoint the archive is disabled and every call returns
// ErrDisabled.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/zenite-os/zenite/internal/platform/errors"
)

const (
	keyRoot         = "characters"
	maxArchiveBytes = 1 << 20
	callTimeout     = 15 * time.Second
)

// ErrDisabled indicates no object storage is configured.
var ErrDisabled = apperrors.New(apperrors.CodeArchiveDisabled, "character archive is disabled")

// Config selects the object storage endpoint.
type Config struct {
	Endpoint  string `env:"ZENITE_ARCHIVE_ENDPOINT"`
	AccessKey string `env:"ZENITE_ARCHIVE_ACCESS_KEY"`
	SecretKey string `env:"ZENITE_ARCHIVE_SECRET_KEY"`
	Bucket    string `env:"ZENITE_ARCHIVE_BUCKET" envDefault:"zenite-archive"`
	UseSSL    bool   `env:"ZENITE_ARCHIVE_USE_SSL"`
}

// ObjectStore is the subset of object storage the archive needs.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Archive writes and lists character snapshots.
type Archive struct {
	objects ObjectStore
	now     func() time.Time
}

// New wraps an object store. A nil store yields a disabled archive.
func New(objects ObjectStore, now func() time.Time) *Archive {
	if now == nil {
		now = time.Now
	}
	return &Archive{objects: objects, now: now}
}

// Open connects to MinIO/S3 when cfg names an endpoint, creating the bucket
// if missing.
func Open(ctx context.Context, cfg Config) (*Archive, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return New(nil, nil), nil
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("archive bucket is required")
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey), ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	exists, err := client.BucketExists(checkCtx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(checkCtx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return New(&MinioStore{client: client, bucket: bucket}, nil), nil
}

// Enabled reports whether object storage is configured.
func (a *Archive) Enabled() bool {
	return a != nil && a.objects != nil
}

// Key returns the object key of a snapshot taken at.
func Key(userID, characterID string, at time.Time) string {
	return path.Join(keyRoot, userID, characterID, strconv.FormatInt(at.UTC().Unix(), 10)+".json")
}

func prefix(userID, characterID string) string {
	return path.Join(keyRoot, userID, characterID) + "/"
}

// Put stores sheet as a new snapshot and returns its key.
func (a *Archive) Put(ctx context.Context, userID, characterID string, sheet []byte) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	if err := validSegments(userID, characterID); err != nil {
		return "", err
	}
	if len(sheet) == 0 {
		return "", errors.New("archive sheet is required")
	}
	if len(sheet) > maxArchiveBytes {
		return "", fmt.Errorf("archive exceeds %d bytes", maxArchiveBytes)
	}
	key := Key(userID, characterID, a.now())
	if err := a.objects.PutObject(ctx, key, sheet, "application/json"); err != nil {
		return "", fmt.Errorf("put archive: %w", err)
	}
	return key, nil
}

// List returns a character's snapshot keys, newest first.
func (a *Archive) List(ctx context.Context, userID, characterID string) ([]string, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	if err := validSegments(userID, characterID); err != nil {
		return nil, err
	}
	keys, err := a.objects.ListKeys(ctx, prefix(userID, characterID))
	if err != nil {
		return nil, fmt.Errorf("list archive: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// Get loads one snapshot. The key must belong to the user.
func (a *Archive) Get(ctx context.Context, userID, key string) ([]byte, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	if !strings.HasPrefix(key, path.Join(keyRoot, userID)+"/") || strings.Contains(key, "..") {
		return nil, apperrors.New(apperrors.CodeNotFound, "archive not found")
	}
	body, err := a.objects.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get archive: %w", err)
	}
	return body, nil
}

func validSegments(segments ...string) error {
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" || strings.ContainsAny(segment, "/\\") || segment == "." || segment == ".." {
			return fmt.Errorf("invalid archive path segment %q", segment)
		}
	}
	return nil
}

// MinioStore implements ObjectStore with minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// PutObject uploads body under key.
func (s *MinioStore) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	putCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	_, err := s.client.PutObject(putCtx, s.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// GetObject downloads key.
func (s *MinioStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	getCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	object, err := s.client.GetObject(getCtx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()
	body, err := io.ReadAll(io.LimitReader(object, maxArchiveBytes+1))
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, apperrors.New(apperrors.CodeNotFound, "archive not found")
		}
		return nil, err
	}
	return body, nil
}

// ListKeys lists object keys under prefix.
func (s *MinioStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	listCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	var keys []string
	for object := range s.client.ListObjects(listCtx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, object.Err
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}
