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

package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/storage/storagetest"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

func setupStore(t *testing.T) *FileStorage {
	t.Helper()
	s, err := New(t.TempDir(), "signer")
	require.NoError(t, err)
	return s
}

func TestFileStorage_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.StateStore {
		return setupStore(t)
	})
}

func TestNew(t *testing.T) {
	root := t.TempDir()

	s, err := New(root, "signer")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "signer"), s.Dir())

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	_, err = New("", "signer")
	assert.Error(t, err)
}

func TestNew_InvalidNames(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "bad\x00name"} {
		_, err := New(root, name)
		assert.ErrorIs(t, err, storage.ErrInvalidID, "name %q", name)
	}
}

func TestFilePermissions(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Store(types.PrivateStateless, []byte("seed")))
	require.NoError(t, s.Store(types.PrivateStateful, []byte("cursor")))
	require.NoError(t, s.Store(types.Public, []byte("public")))

	tests := map[types.KeyPart]os.FileMode{
		types.PrivateStateless: 0600,
		types.PrivateStateful:  0600,
		types.Public:           0644,
	}
	for part, want := range tests {
		info, err := os.Stat(filepath.Join(s.Dir(), part.String()))
		require.NoError(t, err)
		assert.Equal(t, want, info.Mode().Perm(), part.String())
	}

	require.NoError(t, s.StoreStatefulPart([]byte("cursor"), []byte("CURSOR")))
	info, err := os.Stat(filepath.Join(s.Dir(), types.PrivateStateful.String()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFilePermissionsWithOptions(t *testing.T) {
	s, err := NewWithOptions(t.TempDir(), "signer", &storage.Options{Permissions: 0640})
	require.NoError(t, err)
	require.NoError(t, s.Store(types.Public, []byte("public")))

	require.NoError(t, s.Store(types.PrivateStateless, []byte("secret")))

	info, err := os.Stat(filepath.Join(s.Dir(), types.Public.String()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	info, err = os.Stat(filepath.Join(s.Dir(), types.PrivateStateless.String()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "private slots ignore Permissions")
}

func TestNoTemporaryFilesLeft(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Store(types.PrivateStateful, []byte("aaaa")))
	require.NoError(t, s.StoreStatefulPart([]byte("aaaa"), []byte("bbbb")))
	assert.ErrorIs(t, s.StoreStatefulPart([]byte("aaaa"), []byte("cccc")), storage.ErrContentMismatch)
	assert.ErrorIs(t, s.Store(types.PrivateStateful, []byte("dddd")), storage.ErrAlreadyExists)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.PrivateStateful.String(), entries[0].Name())
}

func TestPurgeRemovesStaleTemporaryFiles(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Store(types.PrivateStateless, []byte("seed")))
	stale := filepath.Join(s.Dir(), "xmss_private_stateful.123"+tempSuffix)
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0600))

	require.NoError(t, s.Purge())

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReopenSeesPersistedState(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, "signer")
	require.NoError(t, err)
	require.NoError(t, s.Store(types.PrivateStateful, []byte("aaaa")))
	require.NoError(t, s.StoreStatefulPart([]byte("aaaa"), []byte("bbbb")))
	require.NoError(t, s.Close())

	reopened, err := New(root, "signer")
	require.NoError(t, err)
	got, err := reopened.Load(types.PrivateStateful)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbb"), got)
}

func TestConcurrentCompareAndSwap(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Store(types.PrivateStateful, []byte{0}))

	// Exactly one writer can win each generation.
	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			results <- s.StoreStatefulPart([]byte{0}, []byte{b})
		}(byte(i))
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, storage.ErrContentMismatch)
	}
	assert.Equal(t, 1, wins)
}

func TestValidateKeyName(t *testing.T) {
	assert.NoError(t, validateKeyName("signer-01"))
	assert.NoError(t, validateKeyName("..hidden"))
	assert.Error(t, validateKeyName(""))
	assert.Error(t, validateKeyName(".."))
	assert.Error(t, validateKeyName("../escape"))
}
