package upload

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Smallest valid PNG header followed by padding.
var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func newTestLocal(t *testing.T, opts ...Option) *Local {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return time.UnixMilli(1700000000000) }))
	l, err := NewLocal(filepath.Join(t.TempDir(), "uploads"), "/uploads/", opts...)
	require.NoError(t, err)
	return l
}

func TestSave(t *testing.T) {
	l := newTestLocal(t)

	res, err := l.Save(context.Background(), "../../photo.PNG", bytes.NewReader(pngData))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Filename, "1700000000000-"), res.Filename)
	assert.True(t, strings.HasSuffix(res.Filename, ".png"), res.Filename)
	assert.Equal(t, "/uploads/"+res.Filename, res.URL)
	assert.Equal(t, int64(len(pngData)), res.Size)

	stored, err := os.ReadFile(filepath.Join(l.Dir(), res.Filename))
	require.NoError(t, err)
	assert.Equal(t, pngData, stored)

	other, err := l.Save(context.Background(), "photo.png", bytes.NewReader(pngData))
	require.NoError(t, err)
	assert.NotEqual(t, res.Filename, other.Filename)
}

func TestSaveRejects(t *testing.T) {
	l := newTestLocal(t, WithMaxSize(32))

	_, err := l.Save(context.Background(), "a.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = l.Save(context.Background(), "a.html", strings.NewReader("<html><script>x</script></html>"))
	assert.ErrorIs(t, err, ErrTypeNotAllowed)

	_, err = l.Save(context.Background(), "big.png", bytes.NewReader(pngData))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected uploads leave nothing behind")
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "png", extension("a.PNG"))
	assert.Equal(t, "jpg", extension("noext"))
	assert.Equal(t, "jpg", extension("weird.p$g"))
	assert.Equal(t, "webp", extension("dir/x.webp"))
}
