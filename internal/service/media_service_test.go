package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/models"
	"github.com/ignatzorin/crm-backend/internal/pkg/apperror"
	"github.com/ignatzorin/crm-backend/internal/repository/memory"
	"github.com/ignatzorin/crm-backend/internal/storage"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

func newMediaTestService(t *testing.T, maxMB int64) (*MediaService, string) {
	t.Helper()
	root := t.TempDir()
	objects, err := storage.NewLocalStorage(root, "/media", maxMB)
	require.NoError(t, err)
	return NewMediaService(memory.NewStore().Attachments(), objects), root
}

func TestMediaService_UploadListDelete(t *testing.T) {
	svc, root := newMediaTestService(t, 1)
	ctx := context.Background()
	owner := Actor{UserID: uuid.New(), Role: models.RoleAgent}
	contactID := uuid.New()

	a, err := svc.Upload(ctx, owner, UploadInput{
		FileName:    "logo.png",
		ContentType: "image/png",
		Body:        bytes.NewReader(pngHeader),
		Size:        int64(len(pngHeader)),
		EntityType:  "contact",
		EntityID:    &contactID,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), a.Size)
	assert.True(t, strings.HasPrefix(a.ObjectKey, "attachments/"))
	assert.Equal(t, "/media/"+a.ObjectKey, a.URL)
	_, err = os.Stat(filepath.Join(root, a.ObjectKey))
	require.NoError(t, err)

	items, err := svc.List(ctx, owner, "contact", &contactID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, a.URL, items[0].URL)

	stranger := Actor{UserID: uuid.New(), Role: models.RoleManager}
	assert.ErrorIs(t, svc.Delete(ctx, stranger, a.ID), apperror.ErrForbidden)

	require.NoError(t, svc.Delete(ctx, owner, a.ID))
	_, err = os.Stat(filepath.Join(root, a.ObjectKey))
	assert.True(t, os.IsNotExist(err))
	assert.ErrorIs(t, svc.Delete(ctx, owner, a.ID), apperror.ErrAttachmentNotFound)
}

func TestMediaService_AdminDeletesAnyFile(t *testing.T) {
	svc, _ := newMediaTestService(t, 1)
	ctx := context.Background()

	a, err := svc.Upload(ctx, Actor{UserID: uuid.New()}, UploadInput{
		FileName: "a.png", ContentType: "image/png", Body: bytes.NewReader(pngHeader), Size: int64(len(pngHeader)),
	})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, Actor{UserID: uuid.New(), Role: models.RoleAdmin}, a.ID))
}

func TestMediaService_ListWithoutFilterReturnsOwnFiles(t *testing.T) {
	svc, _ := newMediaTestService(t, 1)
	ctx := context.Background()
	me, other := Actor{UserID: uuid.New()}, Actor{UserID: uuid.New()}

	for _, actor := range []Actor{me, other} {
		_, err := svc.Upload(ctx, actor, UploadInput{
			FileName: "f.png", ContentType: "image/png", Body: bytes.NewReader(pngHeader), Size: int64(len(pngHeader)),
		})
		require.NoError(t, err)
	}

	items, err := svc.List(ctx, me, "", nil)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, me.UserID, items[0].UserID)
}

func TestMediaService_UploadValidation(t *testing.T) {
	svc, _ := newMediaTestService(t, 1)
	ctx := context.Background()
	actor := Actor{UserID: uuid.New()}
	id := uuid.New()

	_, err := svc.Upload(ctx, actor, UploadInput{FileName: "a.png", Body: bytes.NewReader(pngHeader), EntityType: "order", EntityID: &id})
	assert.True(t, apperror.IsValidation(err))

	_, err = svc.Upload(ctx, actor, UploadInput{FileName: "a.png", Body: bytes.NewReader(pngHeader), EntityType: "deal"})
	assert.True(t, apperror.IsValidation(err))

	big := bytes.Repeat([]byte{1}, 2*1024*1024)
	_, err = svc.Upload(ctx, actor, UploadInput{FileName: "big.pdf", ContentType: "application/pdf", Body: bytes.NewReader(big), Size: int64(len(big))})
	assert.True(t, apperror.IsValidation(err))
}

func TestMediaService_NoStorage(t *testing.T) {
	svc := NewMediaService(memory.NewStore().Attachments(), nil)
	_, err := svc.Upload(context.Background(), Actor{UserID: uuid.New()}, UploadInput{FileName: "a"})

	appErr, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.ErrCodeUnavailable, appErr.Code)
}
