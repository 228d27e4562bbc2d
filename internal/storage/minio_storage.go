package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig параметры S3-совместимого хранилища.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	PublicURL string
}

// MinioStorage хранит объекты в S3-совместимом бакете.
type MinioStorage struct {
	client         *minio.Client
	bucket         string
	publicURL      string
	maxUploadBytes int64
}

// NewMinioStorage подключается к хранилищу и создаёт бакет при необходимости.
func NewMinioStorage(ctx context.Context, cfg MinioConfig, maxUploadMB int64) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: клиент minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("storage: проверка бакета %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("storage: создание бакета %s: %w", cfg.Bucket, err)
		}
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}

	return &MinioStorage{
		client:         client,
		bucket:         cfg.Bucket,
		publicURL:      publicURL,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

func (s *MinioStorage) Name() string { return "minio" }

// Put загружает объект. При неизвестном размере minio буферизует поток частями.
func (s *MinioStorage) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (int64, error) {
	key, err := cleanKey(key)
	if err != nil {
		return 0, err
	}
	if size > s.maxUploadBytes {
		return 0, ErrTooLarge
	}
	if size <= 0 {
		size = -1
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, io.LimitReader(r, s.maxUploadBytes), size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("storage: загрузка %s: %w", key, err)
	}
	return info.Size, nil
}

// Open возвращает поток объекта.
func (s *MinioStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.mapError(key, err)
	}
	// GetObject ленивый: ошибка отсутствия объекта видна только после Stat
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, s.mapError(key, err)
	}
	return obj, nil
}

// Delete удаляет объект.
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return s.mapError(key, err)
	}
	return nil
}

// URL возвращает публичный адрес объекта.
func (s *MinioStorage) URL(key string) string {
	return s.publicURL + "/" + strings.TrimPrefix(key, "/")
}

func (s *MinioStorage) mapError(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound
	}
	return fmt.Errorf("storage: %s: %w", key, err)
}
