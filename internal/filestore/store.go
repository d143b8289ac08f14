// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package filestore reads and writes JSON documents below a root directory.
package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a document does not exist.
	// Use errors.Is(err, ErrNotFound) to check for it.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidName is returned for names that are empty, absolute, or
	// would resolve outside the store root.
	ErrInvalidName = errors.New("invalid document name")
)

// PathError records the operation and document name of a failed store call.
type PathError struct {
	Op   string
	Name string
	Err  error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return e.Op + " " + e.Name + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}

// =============================================================================
// STORE
// =============================================================================

const (
	defaultFilePerm os.FileMode = 0644
	defaultDirPerm  os.FileMode = 0755
)

// Store is a directory of documents addressed by slash-free relative names.
type Store struct {
	root     string
	filePerm os.FileMode
	dirPerm  os.FileMode
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store root: %w", err)
	}
	if err := os.MkdirAll(abs, defaultDirPerm); err != nil {
		return nil, &PathError{Op: "mkdir", Name: abs, Err: err}
	}
	return &Store{
		root:     abs,
		filePerm: defaultFilePerm,
		dirPerm:  defaultDirPerm,
	}, nil
}

// Sub returns a store rooted at the named subdirectory, creating it if needed.
func (s *Store) Sub(name string) (*Store, error) {
	dir, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	sub, err := New(dir)
	if err != nil {
		return nil, err
	}
	sub.filePerm = s.filePerm
	sub.dirPerm = s.dirPerm
	return sub, nil
}

// Root returns the absolute root directory of the store.
func (s *Store) Root() string {
	return s.root
}

// Path resolves a document name to its absolute path.
func (s *Store) Path(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) {
		return "", &PathError{Op: "resolve", Name: name, Err: ErrInvalidName}
	}
	return filepath.Join(s.root, name), nil
}

// =============================================================================
// READ
// =============================================================================

// Read returns the raw bytes of a document.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &PathError{Op: "read", Name: name, Err: ErrNotFound}
		}
		return nil, &PathError{Op: "read", Name: name, Err: err}
	}
	return data, nil
}

// ReadJSON decodes a document into v.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := s.Read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &PathError{Op: "decode", Name: name, Err: err}
	}
	return nil
}

// Exists reports whether a document is present.
func (s *Store) Exists(name string) (bool, error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &PathError{Op: "stat", Name: name, Err: err}
	}
	return true, nil
}

// List returns the names of regular, non-hidden files in the store root that
// end with suffix, sorted by name.
func (s *Store) List(suffix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &PathError{Op: "list", Name: s.root, Err: err}
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") {
			continue
		}
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// =============================================================================
// WRITE
// =============================================================================

// Write replaces a document with data. Parent directories are created on
// demand and the file is swapped in atomically.
func (s *Store) Write(name string, data []byte) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, data, s.filePerm, s.dirPerm); err != nil {
		return &PathError{Op: "write", Name: name, Err: err}
	}
	return nil
}

// WriteJSON encodes v as two-space indented JSON and writes it.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &PathError{Op: "encode", Name: name, Err: err}
	}
	return s.Write(name, data)
}

// Ensure writes def as the document's content when the document is absent and
// does nothing otherwise. It reports whether the document was created.
func (s *Store) Ensure(name string, def any) (bool, error) {
	exists, err := s.Exists(name)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.WriteJSON(name, def); err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a document. Deleting an absent document succeeds; existed
// reports whether there was anything to remove.
func (s *Store) Delete(name string) (existed bool, err error) {
	path, err := s.Path(name)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, &PathError{Op: "delete", Name: name, Err: err}
	}
	return true, nil
}
