// Package storage хранит загруженные файлы: вложения, логотипы и PDF предложений.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrObjectNotFound возвращается, когда объекта нет в хранилище.
var ErrObjectNotFound = errors.New("storage: объект не найден")

// ErrTooLarge возвращается при превышении лимита размера.
var ErrTooLarge = errors.New("storage: размер файла превышает лимит")

// ObjectStorage общий интерфейс файлового и S3-совместимого хранилищ.
type ObjectStorage interface {
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
	Name() string
}

// ObjectKey формирует ключ объекта вида prefix/<uuid>_<имя>.
func ObjectKey(prefix, originalName string) string {
	return path.Join(prefix, uuid.NewString()+"_"+sanitizeFilename(originalName))
}

// cleanKey нормализует ключ и запрещает выход за пределы хранилища.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("storage: пустой ключ объекта")
	}
	return key, nil
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." {
		name = "file"
	}
	return name
}
