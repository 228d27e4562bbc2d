package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage хранит файлы на локальном диске. Используется, когда BLOB_* не настроены.
type LocalStorage struct {
	rootPath       string
	publicPrefix   string
	maxUploadBytes int64
}

// NewLocalStorage создаёт файловое хранилище.
func NewLocalStorage(rootPath, publicPrefix string, maxUploadMB int64) (*LocalStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &LocalStorage{
		rootPath:       rootPath,
		publicPrefix:   strings.TrimRight(publicPrefix, "/"),
		maxUploadBytes: maxUploadMB * 1024 * 1024,
	}, nil
}

func (s *LocalStorage) Name() string { return "local" }

// Root возвращает корневой каталог для раздачи статики.
func (s *LocalStorage) Root() string { return s.rootPath }

// Put сохраняет файл через временный файл и переименование.
func (s *LocalStorage) Put(ctx context.Context, key, _ string, r io.Reader, _ int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return 0, err
	}

	targetPath := filepath.Join(s.rootPath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return 0, fmt.Errorf("storage: не удалось создать каталог: %w", err)
	}

	tempPath := targetPath + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: r, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return 0, ErrTooLarge
	}

	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}
	return written, nil
}

// Open открывает сохранённый файл.
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.rootPath, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("storage: не удалось открыть файл: %w", err)
	}
	return f, nil
}

// Delete удаляет файл из хранилища.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := cleanKey(key)
	if err != nil {
		return err
	}

	target := filepath.Join(s.rootPath, filepath.FromSlash(key))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// URL возвращает публичный адрес файла.
func (s *LocalStorage) URL(key string) string {
	return s.publicPrefix + "/" + strings.TrimPrefix(key, "/")
}
