package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the configured limit.
var ErrTooLarge = errors.New("attachment exceeds size limit")

// AttachmentStore persists uploaded files and returns an opaque reference.
type AttachmentStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	// Delete removes a previously saved attachment. Unknown names are not an error.
	Delete(ctx context.Context, name string) error
}

// LocalStore writes attachments under a base directory.
type LocalStore struct {
	baseDir  string
	maxBytes int64
	now      func() time.Time
}

// NewLocalStore creates the base directory if needed.
func NewLocalStore(baseDir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{baseDir: baseDir, maxBytes: maxBytes, now: time.Now}, nil
}

// Save stores r as <unix-millis>-<uuid>-<basename> and returns that name.
func (s *LocalStore) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString(), sanitize(filename))
	path := filepath.Join(s.baseDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create attachment: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return name, nil
}

// Delete removes name from the base directory.
func (s *LocalStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid attachment name %q", name)
	}
	if err := os.Remove(filepath.Join(s.baseDir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}

func sanitize(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." || strings.Trim(base, "_") == "" {
		return "attachment"
	}
	return base
}
