package history

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.klb.dev/clipwatch/internal/crypto"
)

// FileStore keeps the whole history in one file. Every mutation reads the
// file, changes the sequence in memory and replaces the file atomically.
type FileStore[T any] struct {
	path string
	key  *crypto.Key
}

var _ Store[struct{}] = (*FileStore[struct{}])(nil)

// NewFileStore returns a store backed by path. A non-nil key seals the file;
// existing sealed files can only be read with the same key.
func NewFileStore[T any](path string, key *crypto.Key) *FileStore[T] {
	return &FileStore[T]{path: path, key: key}
}

// Path returns the backing file.
func (s *FileStore[T]) Path() string { return s.path }

func (s *FileStore[T]) Load(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &IOError{Op: "read", Path: s.path, Err: err}
	}
	if len(data) == 0 {
		return nil, nil
	}
	return decode[T](data, s.key)
}

func (s *FileStore[T]) Save(ctx context.Context, records []T) error {
	cur, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.write(append(cur, records...))
}

func (s *FileStore[T]) Put(ctx context.Context, record T) error {
	return s.Save(ctx, []T{record})
}

func (s *FileStore[T]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(nil)
}

func (s *FileStore[T]) ShrinkTo(ctx context.Context, n int) error {
	cur, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return s.write(Shrink(cur, n))
}

func (s *FileStore[T]) Close() error { return nil }

// write encodes records before touching the disk, then swaps the file in via
// a synced temp file and rename.
func (s *FileStore[T]) write(records []T) error {
	data, err := encode(records, s.key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	fail := func(op string, err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return &IOError{Op: op, Path: tmpPath, Err: err}
	}

	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return &IOError{Op: "rename", Path: s.path, Err: err}
	}
	return nil
}
