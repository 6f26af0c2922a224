package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalStorage_Lifecycle(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()
	key := "analyses/abc/lsa.json.sz"
	content := []byte("hello world")

	etag, err := s.Put(ctx, key, content)
	require.NoError(t, err)
	sum := md5.Sum(content)
	assert.Equal(t, hex.EncodeToString(sum[:]), etag)

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	require.NoError(t, s.Delete(ctx, key))
	ok, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// the emptied analysis directory goes with the last object
	_, err = os.Stat(filepath.Join(s.Root(), "analyses", "abc"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(s.Root())
	assert.NoError(t, err)
}

func TestLocalStorage_DeleteKeepsSiblings(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "analyses/1/lsa", []byte("a"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "analyses/1/funnel", []byte("b"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "analyses/1/lsa"))
	got, err := s.Get(ctx, "analyses/1/funnel")
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestLocalStorage_PutOverwrites(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	_, err := s.Put(ctx, "a/b", []byte("first"))
	require.NoError(t, err)
	_, err = s.Put(ctx, "a/b", []byte("second"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestLocalStorage_Missing(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing/object")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.NoError(t, s.Delete(ctx, "never/written"))
}

func TestLocalStorage_ListObjects(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, k := range []string{"analyses/2/lsa", "analyses/1/lsa", "analyses/1/funnel", "other/x"} {
		_, err := s.Put(ctx, k, []byte(k))
		require.NoError(t, err)
	}
	// a stray temp file from an interrupted write is not an object
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "analyses", tmpPrefix+"123"), nil, 0o644))

	got, err := s.ListObjects(ctx, "analyses/1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"analyses/1/funnel", "analyses/1/lsa"}, got)

	all, err := s.ListObjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestLocalStorage_RejectsBadKeys(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"", "/etc/passwd", "../outside", "a/../../b", "a//b", "a/./b", `a\b`, "a/"} {
		_, err := s.Put(ctx, key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, "Put(%q)", key)
		_, err = s.Get(ctx, key)
		assert.ErrorIs(t, err, ErrInvalidKey, "Get(%q)", key)
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"x", "analyses/0190a0b0/lsa.json.sz", "a.b/c-d_e"} {
		assert.NoError(t, ValidateKey(key), key)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	s := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "x", []byte("y"))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.ListObjects(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}
