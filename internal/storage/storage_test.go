package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_PutOpenDelete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "/media/", 1)
	require.NoError(t, err)
	ctx := context.Background()

	key := "attachments/user/file.txt"
	n, err := s.Put(ctx, key, "text/plain", strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "/media/attachments/user/file.txt", s.URL(key))

	rc, err := s.Open(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Open(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)

	// повторное удаление не ошибка
	require.NoError(t, s.Delete(ctx, key))
}

func TestLocalStorage_RejectsOversizedFile(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "/media", 1)
	require.NoError(t, err)

	big := bytes.Repeat([]byte("a"), 1024*1024+1)
	_, err = s.Put(context.Background(), "big.bin", "application/octet-stream", bytes.NewReader(big), int64(len(big)))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Open(context.Background(), "big.bin")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorage_KeysStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStorage(root, "/media", 1)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../../escape.txt", "text/plain", strings.NewReader("x"), 1)
	require.NoError(t, err)

	rc, err := s.Open(context.Background(), "escape.txt")
	require.NoError(t, err)
	_ = rc.Close()
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("logos", "../My Logo.png")
	assert.True(t, strings.HasPrefix(key, "logos/"))
	assert.True(t, strings.HasSuffix(key, "_My_Logo.png"))
	assert.NotContains(t, key, "..")

	cleaned, err := cleanKey("/a/../b/./c.txt")
	require.NoError(t, err)
	assert.Equal(t, "b/c.txt", cleaned)

	_, err = cleanKey("")
	assert.Error(t, err)
}
