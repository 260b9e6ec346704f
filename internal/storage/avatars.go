// Package storage keeps uploaded avatar images on local disk.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrTooLarge = errors.New("upload too large")
	ErrNotImage = errors.New("upload is not an image")
)

// Upload is one file received with a request.
type Upload struct {
	Filename string
	Content  io.Reader
}

type Avatars interface {
	// Save stores the upload and returns its bare filename.
	Save(ctx context.Context, up Upload) (string, error)
	// Remove deletes a stored file. Unknown names are not an error.
	Remove(ctx context.Context, name string) error
}

type LocalAvatars struct {
	dir      string
	maxBytes int64
}

func NewLocalAvatars(dir string, maxBytes int64) (*LocalAvatars, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalAvatars{dir: dir, maxBytes: maxBytes}, nil
}

func (s *LocalAvatars) Dir() string { return s.dir }

func (s *LocalAvatars) Save(ctx context.Context, up Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(io.LimitReader(up.Content, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", ErrNotImage
	}

	name := uuid.NewString() + mt.Extension()
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create avatar file: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write avatar file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close avatar file: %w", err)
	}
	return name, nil
}

func (s *LocalAvatars) Remove(_ context.Context, name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.Base(name)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
