package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const backupSuffix = ".bak"

// FileDocumentStore keeps each document as <dir>/<name>.json with a .bak sibling.
type FileDocumentStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileDocumentStore creates the directory if needed.
func NewFileDocumentStore(dir string) (*FileDocumentStore, error) {
	dir = expandPath(dir)
	if dir == "" {
		return nil, fmt.Errorf("file store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file store: create dir: %w", err)
	}
	return &FileDocumentStore{dir: dir}, nil
}

// Dir returns the base directory.
func (f *FileDocumentStore) Dir() string { return f.dir }

// Path returns the primary file path for name.
func (f *FileDocumentStore) Path(name string) string {
	return filepath.Join(f.dir, ensureJSONExt(name))
}

func (f *FileDocumentStore) Load(_ context.Context, name string) ([]byte, error) {
	return readDocument(f.Path(name), name)
}

func (f *FileDocumentStore) LoadBackup(_ context.Context, name string) ([]byte, error) {
	return readDocument(f.Path(name)+backupSuffix, name)
}

func readDocument(path, name string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ErrNotFound{Key: name}
		}
		return nil, err
	}
	return data, nil
}

// Save writes to a temp file, fsyncs, renames over the primary and then
// copies the primary to the backup. A failed backup copy is not an error.
func (f *FileDocumentStore) Save(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.Path(name)
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}
	_ = copyFile(path, path+backupSuffix)
	return nil
}

func (f *FileDocumentStore) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.Path(name)
	for _, p := range []string{path, path + backupSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (f *FileDocumentStore) List(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *FileDocumentStore) Health(context.Context) error {
	_, err := os.Stat(f.dir)
	return err
}

func (f *FileDocumentStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func ensureJSONExt(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return name
	}
	return name + ".json"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
