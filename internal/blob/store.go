// Package blob stores proof-of-payment files and message attachments on the
// local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotAllowed = errors.New("file type not allowed")
	ErrTooLarge   = errors.New("file too large")
	ErrEmpty      = errors.New("file is empty")
	ErrNotFound   = errors.New("file not found")
	ErrBadPath    = errors.New("invalid file path")
)

var allowedExtensions = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

// ContentType returns the MIME type served for a stored path.
func ContentType(p string) string {
	if ct, ok := allowedExtensions[extension(p)]; ok {
		return ct
	}
	return "application/octet-stream"
}

func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(name)), "."))
}

// Store keeps files under Root. Paths handed out are relative and use forward
// slashes: "<lease_group_id>/<owner_id>_<uuid>.<ext>".
type Store struct {
	Root     string
	MaxBytes int64
}

// Put writes r as a new file for the lease group. ownerID is the record the
// file belongs to (a payment or message id) and only prefixes the name.
func (s *Store) Put(ctx context.Context, leaseGroupID, ownerID, filename string, r io.Reader) (string, error) {
	ext := extension(filename)
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: %q", ErrNotAllowed, filename)
	}
	if !safeSegment(leaseGroupID) || !safeSegment(ownerID) {
		return "", ErrBadPath
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := path.Join(leaseGroupID, fmt.Sprintf("%s_%s.%s", ownerID, uuid.NewString(), ext))
	full := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	src := r
	if s.MaxBytes > 0 {
		src = io.LimitReader(r, s.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		err = fmt.Errorf("write upload: %w", err)
	case n == 0:
		err = ErrEmpty
	case s.MaxBytes > 0 && n > s.MaxBytes:
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.MaxBytes)
	}
	if err != nil {
		_ = os.Remove(full)
		return "", err
	}
	return rel, nil
}

// Open returns the file at a path previously returned by Put. Paths that
// escape Root are rejected.
func (s *Store) Open(rel string) (*os.File, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Remove deletes a stored file; a missing file is not an error.
func (s *Store) Remove(rel string) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) resolve(rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" || strings.Contains(rel, "\\") || path.IsAbs(rel) {
		return "", ErrBadPath
	}
	clean := path.Clean(rel)
	if clean != rel || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." {
		return "", ErrBadPath
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(clean))
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", ErrBadPath
	}
	return full, nil
}

func safeSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`)
}
