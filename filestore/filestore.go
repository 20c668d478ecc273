// Package filestore manages the artifact directory generated posts are written to.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a named artifact does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidName is returned for names that escape the artifact directory.
	ErrInvalidName = errors.New("invalid file name")
)

// Store is a flat directory of generated artifacts.
type Store struct {
	root string
}

// Entry describes one stored artifact.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// New creates the directory if needed.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifact directory required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute artifact directory.
func (s *Store) Root() string { return s.root }

// Resolve maps a name to a path inside the store. Names may be given relative
// to the store ("post.md") or prefixed with the directory name the way models
// tend to phrase it ("filestore/post.md").
func (s *Store) Resolve(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return "", ErrInvalidName
	}
	if filepath.IsAbs(name) {
		rel, err := filepath.Rel(s.root, filepath.Clean(name))
		if err != nil {
			return "", ErrInvalidName
		}
		name = rel
	}
	name = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "./")
	if base := filepath.Base(s.root) + "/"; strings.HasPrefix(name, base) {
		name = strings.TrimPrefix(name, base)
	}
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		return "", ErrInvalidName
	}
	full := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidName
	}
	return full, nil
}

// Write stores content under name and returns the name relative to the root.
func (s *Store) Write(name, content string) (string, error) {
	full, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", err
	}
	rel, _ := filepath.Rel(s.root, full)
	return filepath.ToSlash(rel), nil
}

// Open returns the named artifact for reading. The caller closes the file.
func (s *Store) Open(name string) (*os.File, os.FileInfo, error) {
	full, err := s.Resolve(name)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

// ReadFile returns the content of a stored artifact.
func (s *Store) ReadFile(name string) ([]byte, error) {
	f, _, err := s.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// List returns the stored artifacts, newest first.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].Name < out[j].Name
		}
		return out[i].ModTime.After(out[j].ModTime)
	})
	return out, nil
}
