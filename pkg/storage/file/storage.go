// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-xmss.
//
// go-xmss is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package file provides a file-based implementation of storage.StateStore.
// Each key lives in its own directory with one file per slot. Writes are
// made durable with fsync before they are acknowledged, and the stateful
// compare-and-swap replaces the slot atomically by rename.
package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const (
	// Default directory permissions (owner rwx only)
	defaultDirPerms = 0700

	// File permissions based on slot
	privateFilePerms = 0600 // private slots = owner rw only
	publicFilePerms  = 0644 // public slot = owner rw, others r

	tempSuffix = ".tmp"
)

// FileStorage is a file-based implementation of storage.StateStore for a
// single named key. It is thread-safe within one process.
type FileStorage struct {
	mu     sync.RWMutex
	keyDir string
	perms  fs.FileMode
}

var _ storage.StateStore = (*FileStorage)(nil)

// New creates a FileStorage for the key called name under rootDir. The key
// directory is created with 0700 permissions if it doesn't exist.
func New(rootDir, name string) (*FileStorage, error) {
	return NewWithOptions(rootDir, name, nil)
}

// NewWithOptions is New with explicit storage options. A non-zero
// opts.Permissions overrides the permission of the public slot file.
func NewWithOptions(rootDir, name string, opts *storage.Options) (*FileStorage, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("file storage: root directory cannot be empty")
	}
	if err := validateKeyName(name); err != nil {
		return nil, fmt.Errorf("file storage: %w: %v", storage.ErrInvalidID, err)
	}

	keyDir := filepath.Join(rootDir, name)
	if err := os.MkdirAll(keyDir, defaultDirPerms); err != nil {
		return nil, fmt.Errorf("file storage: failed to create key directory: %w", err)
	}

	perms := fs.FileMode(publicFilePerms)
	if opts != nil && opts.Permissions != 0 {
		perms = opts.Permissions
	}

	return &FileStorage{
		keyDir: keyDir,
		perms:  perms,
	}, nil
}

// Dir returns the directory holding the key's slot files.
func (f *FileStorage) Dir() string {
	return f.keyDir
}

// Store writes data into an empty slot. The data is written to a temporary
// file and hard-linked into place, so the slot either appears complete or
// not at all.
func (f *FileStorage) Store(part types.KeyPart, data []byte) error {
	if err := storage.ValidatePart(part); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.partPath(part)
	if _, err := os.Stat(target); err == nil {
		return storage.ErrAlreadyExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("file storage: failed to stat %s: %w", part, err)
	}

	tmp, err := f.writeTemp(part, data)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp) }()

	if err := os.Link(tmp, target); err != nil {
		if os.IsExist(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("file storage: failed to commit %s: %w", part, err)
	}
	return f.syncDir()
}

// StoreStatefulPart atomically replaces the stateful slot when its current
// contents equal expected.
func (f *FileStorage) StoreStatefulPart(expected, data []byte) error {
	if len(expected) != len(data) {
		return storage.ErrSizeMismatch
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.read(types.PrivateStateful)
	if err != nil {
		return err
	}
	defer storage.Zeroize(current)

	if err := storage.CheckSwap(current, expected, data); err != nil {
		return err
	}

	tmp, err := f.writeTemp(types.PrivateStateful, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, f.partPath(types.PrivateStateful)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file storage: failed to replace stateful part: %w", err)
	}
	return f.syncDir()
}

// Load returns the slot contents.
// Returns storage.ErrNotFound if the slot does not exist.
func (f *FileStorage) Load(part types.KeyPart) ([]byte, error) {
	if err := storage.ValidatePart(part); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.read(part)
}

// DeletePublicPart removes the public slot file if present.
func (f *FileStorage) DeletePublicPart() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.partPath(types.Public)); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("file storage: failed to delete public part: %w", err)
	}
	return f.syncDir()
}

// Purge overwrites the private slot files with zeros, syncs them, and
// removes all slot files along with any stale temporary files.
func (f *FileStorage) Purge() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, part := range types.KeyParts {
		path := f.partPath(part)
		if part.IsPrivate() {
			if err := overwrite(path); err != nil {
				errs = append(errs, fmt.Errorf("file storage: failed to erase %s: %w", part, err))
				continue
			}
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("file storage: failed to delete %s: %w", part, err))
		}
	}

	stale, err := filepath.Glob(filepath.Join(f.keyDir, "*"+tempSuffix))
	if err == nil {
		for _, path := range stale {
			_ = overwrite(path)
			_ = os.Remove(path)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return f.syncDir()
}

// Close releases any resources held by the store.
// For file storage, this is a no-op but provided for interface compliance.
func (f *FileStorage) Close() error {
	return nil
}

func (f *FileStorage) partPath(part types.KeyPart) string {
	return filepath.Join(f.keyDir, part.String())
}

func (f *FileStorage) filePerms(part types.KeyPart) fs.FileMode {
	if part.IsPrivate() {
		return privateFilePerms
	}
	return f.perms
}

func (f *FileStorage) read(part types.KeyPart) ([]byte, error) {
	cleanPath := filepath.Clean(f.partPath(part))
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("file storage: failed to read %s: %w", part, err)
	}
	return data, nil
}

// writeTemp writes data to a synced temporary file next to the slot and
// returns its path.
func (f *FileStorage) writeTemp(part types.KeyPart, data []byte) (string, error) {
	tmp, err := os.CreateTemp(f.keyDir, part.String()+".*"+tempSuffix)
	if err != nil {
		return "", fmt.Errorf("file storage: failed to create temporary file: %w", err)
	}
	name := tmp.Name()

	fail := func(op string, err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("file storage: failed to %s temporary file: %w", op, err)
	}

	if err := tmp.Chmod(f.filePerms(part)); err != nil {
		return fail("chmod", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("file storage: failed to close temporary file: %w", err)
	}
	return name, nil
}

func (f *FileStorage) syncDir() error {
	dir, err := os.Open(f.keyDir)
	if err != nil {
		return fmt.Errorf("file storage: failed to open key directory: %w", err)
	}
	defer func() { _ = dir.Close() }()

	if err := dir.Sync(); err != nil {
		return fmt.Errorf("file storage: failed to sync key directory: %w", err)
	}
	return nil
}

// overwrite replaces the file contents with zeros in place and syncs.
// A missing file is not an error.
func overwrite(path string) error {
	file, err := os.OpenFile(filepath.Clean(path), os.O_WRONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if _, err := file.WriteAt(make([]byte, info.Size()), 0); err != nil {
		return err
	}
	return file.Sync()
}

// validateKeyName validates a key name. Names map to a single directory
// below the root, so separators and traversal are rejected.
func validateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}

	// Check for null bytes
	if strings.Contains(name, "\x00") {
		return fmt.Errorf("key name contains null byte")
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("key name cannot contain path separators")
	}

	if name == "." || name == ".." {
		return fmt.Errorf("key name contains path traversal attempt")
	}

	return nil
}
