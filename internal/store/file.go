package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/pretty"
)

// FileExt is the suffix of entity document files.
const FileExt = ".entity.json"

// FileStore keeps one pretty-printed file per resource under a root
// directory: resource "scenes/opening" lives in "scenes/opening.entity.json".
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("file store: path is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create store directory %s: %w", abs, err)
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *FileStore) Root() string { return s.root }

// PathFor returns the file that holds resource.
func (s *FileStore) PathFor(resource string) string {
	return filepath.Join(s.root, filepath.FromSlash(resource)+FileExt)
}

// ResourceFor returns the resource stored in file, if file is an entity
// document under the root.
func (s *FileStore) ResourceFor(file string) (string, bool) {
	rel, err := filepath.Rel(s.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	resource, ok := strings.CutSuffix(rel, FileExt)
	if !ok || ValidateResource(resource) != nil {
		return "", false
	}
	return resource, true
}

func (s *FileStore) Load(_ context.Context, resource string) ([]byte, error) {
	if err := ValidateResource(resource); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.PathFor(resource))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", resource, err)
	}
	return data, nil
}

// Save writes the document through a temporary file so a crash never
// leaves a truncated document behind.
func (s *FileStore) Save(_ context.Context, resource string, data []byte) error {
	if err := ValidateResource(resource); err != nil {
		return err
	}
	target := s.PathFor(resource)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("save %s: %w", resource, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".entity-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", resource, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pretty.Pretty(data)); err != nil {
		tmp.Close()
		return fmt.Errorf("save %s: %w", resource, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", resource, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("save %s: %w", resource, err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, resource string) error {
	if err := ValidateResource(resource); err != nil {
		return err
	}
	err := os.Remove(s.PathFor(resource))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	var result []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if resource, ok := s.ResourceFor(p); ok {
			result = append(result, resource)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}
	sort.Strings(result)
	return result, nil
}

func (s *FileStore) Close() error { return nil }
