// Package assets stores the binary artifacts produced by enrichment.
//
// Assets are grouped per bookmark so that deleting a bookmark can remove
// everything it owns with a single directory removal:
//
//	<root>/<bookmarkID>/<kind>/<filename>
package assets

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies the family an asset belongs to.
type Kind string

const (
	KindScreenshot    Kind = "screenshot"
	KindLinkedInImage Kind = "linkedin-image"
)

// ScreenshotFilename is the only filename used for KindScreenshot assets.
const ScreenshotFilename = "screenshot.png"

var (
	ErrNotFound        = eris.New("asset not found")
	ErrStorageFailure  = eris.New("asset storage failure")
	ErrInvalidFilename = eris.New("invalid asset filename")
)

// Store is a filesystem-backed asset store.
type Store struct {
	root string
}

// NewStore returns a Store rooted at dir, creating it if necessary.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(ErrStorageFailure, "create asset root %s: %v", dir, err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory the store writes under.
func (s *Store) Root() string { return s.root }

func (s *Store) bookmarkDir(id int64) string {
	return filepath.Join(s.root, strconv.FormatInt(id, 10))
}

func (s *Store) path(id int64, kind Kind, filename string) (string, error) {
	name, err := SanitizeFilename(filename)
	if err != nil {
		return "", err
	}
	switch kind {
	case KindScreenshot, KindLinkedInImage:
	default:
		return "", eris.Wrapf(ErrInvalidFilename, "unknown asset kind %q", kind)
	}
	return filepath.Join(s.bookmarkDir(id), string(kind), name), nil
}

// SanitizeFilename reduces a caller-supplied name to its final path element
// and rejects names that would escape the asset directory. Dot-files are
// rejected too: Put stages its temp files under such names.
func SanitizeFilename(filename string) (string, error) {
	name := filepath.Base(filepath.Clean(string(filepath.Separator) + filename))
	if name == "" || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		return "", eris.Wrapf(ErrInvalidFilename, "%q", filename)
	}
	return name, nil
}

// Put writes data atomically. Readers see either the previous content or the
// complete new content, never a partial file.
func (s *Store) Put(ctx context.Context, id int64, kind Kind, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := s.path(id, kind, filename)
	if err != nil {
		return err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(ErrStorageFailure, "create %s: %v", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return eris.Wrapf(ErrStorageFailure, "create temp file: %v", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return eris.Wrapf(ErrStorageFailure, "write %s: %v", dst, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return eris.Wrapf(ErrStorageFailure, "sync %s: %v", dst, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(ErrStorageFailure, "close %s: %v", dst, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(ErrStorageFailure, "chmod %s: %v", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return eris.Wrapf(ErrStorageFailure, "rename into %s: %v", dst, err)
	}
	return nil
}

// Get returns the content of an asset, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64, kind Kind, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(id, kind, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "%d/%s/%s", id, kind, filepath.Base(p))
		}
		return nil, eris.Wrapf(ErrStorageFailure, "read %s: %v", p, err)
	}
	return data, nil
}

// Exists reports whether an asset is present.
func (s *Store) Exists(id int64, kind Kind, filename string) bool {
	p, err := s.path(id, kind, filename)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Delete removes a single asset. A missing asset is not an error.
func (s *Store) Delete(ctx context.Context, id int64, kind Kind, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(id, kind, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(ErrStorageFailure, "remove %s: %v", p, err)
	}
	return nil
}

// DeleteAll removes every asset of a bookmark. A bookmark without assets is
// not an error.
func (s *Store) DeleteAll(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.bookmarkDir(id)); err != nil {
		return eris.Wrapf(ErrStorageFailure, "remove assets of bookmark %d: %v", id, err)
	}
	return nil
}

// Screenshot returns the stored screenshot of a bookmark.
func (s *Store) Screenshot(ctx context.Context, id int64) ([]byte, error) {
	return s.Get(ctx, id, KindScreenshot, ScreenshotFilename)
}

// LinkedInImage returns a stored LinkedIn image of a bookmark.
func (s *Store) LinkedInImage(ctx context.Context, id int64, filename string) ([]byte, error) {
	return s.Get(ctx, id, KindLinkedInImage, filename)
}
