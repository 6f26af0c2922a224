package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// tmpPrefix marks in-flight writes; ListObjects never reports them.
const tmpPrefix = ".put-"

// LocalStorage keeps payloads as plain files under a root directory. It is
// the default backend for single-node deployments and tests.
type LocalStorage struct {
	root string

	// mu is held exclusively for renames and deletes, which may prune
	// directories, and shared for reads and temp-file creation.
	mu sync.RWMutex
}

// NewLocalStorage creates root if needed.
func NewLocalStorage(root string) (*LocalStorage, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &LocalStorage{root: root}, nil
}

// Root returns the directory objects are stored under.
func (l *LocalStorage) Root() string { return l.root }

// Put writes through a temp file in the destination directory and renames
// it into place, so a reader sees either the old payload or the new one.
func (l *LocalStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	dest, err := l.resolve(ctx, key)
	if err != nil {
		return "", err
	}
	tmp, err := l.createTemp(filepath.Dir(dest))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr = errors.Join(werr, cerr); werr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, werr)
	}

	l.mu.Lock()
	err = os.Rename(tmp.Name(), dest)
	l.mu.Unlock()
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

func (l *LocalStorage) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := l.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	data, err := os.ReadFile(p)
	l.mu.RUnlock()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	return data, nil
}

// Delete removes the object and any directories it leaves empty, stopping
// at the root.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	p, err := l.resolve(ctx, key)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	for dir := filepath.Dir(p); dir != l.root && strings.HasPrefix(dir, l.root); dir = filepath.Dir(dir) {
		// Remove fails on non-empty directories, which ends the walk.
		if os.Remove(dir) != nil {
			break
		}
	}
	return nil
}

func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	p, err := l.resolve(ctx, key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (l *LocalStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// createTemp holds the read lock so Delete cannot prune dir between the
// mkdir and the create.
func (l *LocalStorage) createTemp(dir string) (*os.File, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return os.CreateTemp(dir, tmpPrefix+"*")
}

// resolve maps a validated key to its file path.
func (l *LocalStorage) resolve(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(key)), nil
}
