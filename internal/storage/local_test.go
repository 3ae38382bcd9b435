package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, 1024)
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "../../etc/screen shot.png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d+-[0-9a-f-]{36}-screen_shot\.png$`), ref)

	data, err := os.ReadFile(filepath.Join(dir, ref))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalStoreRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, 4)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "big.txt", strings.NewReader("too many bytes"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStoreDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, 1024)
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Save(ctx, "trace.log", strings.NewReader("x"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, ref))
	require.NoError(t, store.Delete(ctx, ref))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.Error(t, store.Delete(ctx, "../outside.txt"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "report.pdf", sanitize("report.pdf"))
	assert.Equal(t, "a_b.txt", sanitize(`C:\Users\x\a b.txt`))
	assert.Equal(t, "attachment", sanitize(".."))
	assert.Equal(t, "attachment", sanitize("???"))
}
