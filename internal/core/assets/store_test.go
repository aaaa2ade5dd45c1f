package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, 7, KindScreenshot, ScreenshotFilename, []byte("png")))

	got, err := s.Get(ctx, 7, KindScreenshot, ScreenshotFilename)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)

	shot, err := s.Screenshot(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), shot)

	assert.FileExists(t, filepath.Join(s.Root(), "7", "screenshot", "screenshot.png"))
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, 1, KindLinkedInImage, "img_0.jpg", []byte("old")))
	require.NoError(t, s.Put(ctx, 1, KindLinkedInImage, "img_0.jpg", []byte("new")))

	got, err := s.LinkedInImage(ctx, 1, "img_0.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "1", "linkedin-image"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Screenshot(ctx, 42)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	_, err = s.LinkedInImage(ctx, 42, "img_0.jpg")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"img_0.jpg", "img_0.jpg", false},
		{"../../etc/passwd", "passwd", false},
		{"a/b/c.png", "c.png", false},
		{"", "", true},
		{".", "", true},
		{"..", "", true},
		{"/", "", true},
		{".tmp-123456", "", true},
		{"a/.hidden.png", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SanitizeFilename(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrInvalidFilename))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTempFilesAreNotReadable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, 5, KindLinkedInImage, "img_0.jpg", []byte("published")))

	// A staged write sits next to the published assets until it is renamed.
	dir := filepath.Join(s.Root(), "5", string(KindLinkedInImage))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-42"), []byte("partial"), 0o644))

	_, err := s.LinkedInImage(ctx, 5, ".tmp-42")
	assert.True(t, eris.Is(err, ErrInvalidFilename))
	assert.False(t, s.Exists(5, KindLinkedInImage, ".tmp-42"))
	assert.True(t, eris.Is(s.Put(ctx, 5, KindLinkedInImage, ".tmp-42", []byte("x")), ErrInvalidFilename))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, 9, KindScreenshot, ScreenshotFilename, []byte("png")))
	require.NoError(t, s.Put(ctx, 9, KindLinkedInImage, "img_0.jpg", []byte("jpg")))

	require.NoError(t, s.Delete(ctx, 9, KindScreenshot, ScreenshotFilename))
	assert.False(t, s.Exists(9, KindScreenshot, ScreenshotFilename))
	assert.True(t, s.Exists(9, KindLinkedInImage, "img_0.jpg"), "other assets are kept")

	assert.NoError(t, s.Delete(ctx, 9, KindScreenshot, ScreenshotFilename), "missing asset is not an error")
	assert.NoError(t, s.Delete(ctx, 77, KindScreenshot, ScreenshotFilename))
	assert.True(t, eris.Is(s.Delete(ctx, 9, KindLinkedInImage, ".."), ErrInvalidFilename))
}

func TestPathTraversalStaysInBookmarkDir(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, 3, KindLinkedInImage, "../../../escape.jpg", []byte("x")))
	assert.FileExists(t, filepath.Join(s.Root(), "3", "linkedin-image", "escape.jpg"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(s.Root()), "escape.jpg"))
}

func TestUnknownKind(t *testing.T) {
	s := newTestStore(t)
	err := s.Put(context.Background(), 1, Kind("other"), "x", nil)
	assert.True(t, eris.Is(err, ErrInvalidFilename))
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, 5, KindScreenshot, ScreenshotFilename, []byte("a")))
	require.NoError(t, s.Put(ctx, 5, KindLinkedInImage, "img_0.png", []byte("b")))
	require.NoError(t, s.Put(ctx, 6, KindScreenshot, ScreenshotFilename, []byte("c")))

	require.NoError(t, s.DeleteAll(ctx, 5))

	assert.False(t, s.Exists(5, KindScreenshot, ScreenshotFilename))
	assert.False(t, s.Exists(5, KindLinkedInImage, "img_0.png"))
	assert.True(t, s.Exists(6, KindScreenshot, ScreenshotFilename), "other bookmarks untouched")

	t.Run("idempotent", func(t *testing.T) {
		assert.NoError(t, s.DeleteAll(ctx, 5))
		assert.NoError(t, s.DeleteAll(ctx, 999))
	})
}

func TestCanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, 1, KindScreenshot, ScreenshotFilename, []byte("x")), context.Canceled)
	assert.False(t, s.Exists(1, KindScreenshot, ScreenshotFilename))
}
