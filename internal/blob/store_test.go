package blob

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndOpen(t *testing.T) {
	s := &Store{Root: t.TempDir(), MaxBytes: 1024}

	rel, err := s.Put(context.Background(), "lg-1", "pay-1", "Receipt.PDF", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "lg-1/pay-1_"))
	assert.True(t, strings.HasSuffix(rel, ".pdf"))
	assert.Equal(t, "application/pdf", ContentType(rel))

	f, err := s.Open(rel)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))

	require.NoError(t, s.Remove(rel))
	_, err = s.Open(rel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutRejects(t *testing.T) {
	s := &Store{Root: t.TempDir(), MaxBytes: 4}
	ctx := context.Background()

	_, err := s.Put(ctx, "lg-1", "p", "run.exe", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrNotAllowed)

	_, err = s.Put(ctx, "lg-1", "p", "big.png", strings.NewReader("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = s.Put(ctx, "lg-1", "p", "empty.png", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = s.Put(ctx, "../etc", "p", "x.png", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrBadPath)
}

func TestOpenRejectsTraversal(t *testing.T) {
	s := &Store{Root: t.TempDir()}
	for _, p := range []string{"", "../secret.pdf", "lg-1/../../x.pdf", "/etc/passwd", `lg-1\x.pdf`, "lg-1/./x.pdf"} {
		_, err := s.Open(p)
		assert.ErrorIs(t, err, ErrBadPath, p)
	}
}
