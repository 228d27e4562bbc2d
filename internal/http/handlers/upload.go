package handlers

import (
	"io"
	"mime/multipart"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
)

// Типы, которые принимаются как вложения. Определяются по магическим байтам.
var attachmentMimeTypes = mimeSet(
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"application/msword",
	"application/vnd.ms-excel",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
)

// Логотип компании может быть только изображением.
var imageMimeTypes = mimeSet("image/jpeg", "image/png", "image/gif", "image/webp")

func mimeSet(types ...string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

// uploadedFile файл из multipart формы с реальным типом содержимого.
type uploadedFile struct {
	file        multipart.File
	name        string
	contentType string
	size        int64
}

func (f *uploadedFile) Close() error { return f.file.Close() }

// openUpload читает файл из поля формы и проверяет его сигнатуру.
// Расширение имени файла приводится к реальному типу.
func openUpload(c *gin.Context, field string, allowed map[string]bool) (*uploadedFile, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, apperror.Validation("файл обязателен (поле %s)", field)
	}

	file, err := header.Open()
	if err != nil {
		return nil, apperror.Internal(err)
	}

	// Для определения типа достаточно первых 261 байта
	buffer := make([]byte, 261)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		file.Close()
		return nil, apperror.Internal(err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, apperror.Internal(err)
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown || !allowed[kind.MIME.Value] {
		file.Close()
		return nil, apperror.Validation("неподдерживаемый тип файла")
	}

	name := header.Filename
	ext := filepath.Ext(name)
	if expected := "." + kind.Extension; ext != expected && !(kind.Extension == "jpg" && ext == ".jpeg") {
		name = name[:len(name)-len(ext)] + expected
	}

	return &uploadedFile{
		file:        file,
		name:        name,
		contentType: kind.MIME.Value,
		size:        header.Size,
	}, nil
}
