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

// Package vault provides a storage.StateStore backed by a HashiCorp Vault
// KV version 2 secrets engine. Each slot is a separate secret. Create-once
// writes and the stateful compare-and-swap both use KV check-and-set
// versions, and purge destroys every version by deleting secret metadata.
package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-xmss/pkg/storage"
	"github.com/jeremyhahn/go-xmss/pkg/types"
)

const (
	dataField = "value"

	defaultMountPath = "secret"
	defaultBasePath  = "xmss"
)

// Config holds the configuration for the Vault store.
type Config struct {
	// Address is the Vault server address (e.g., "http://127.0.0.1:8200")
	Address string `yaml:"address"`

	// Token is the Vault authentication token
	Token string `yaml:"token"`

	// Namespace is the Vault namespace (Enterprise feature, optional)
	Namespace string `yaml:"namespace"`

	// MountPath is the KV v2 mount (default: "secret")
	MountPath string `yaml:"mount_path"`

	// BasePath is prepended to every key name (default: "xmss")
	BasePath string `yaml:"base_path"`

	// TLSSkipVerify disables TLS certificate verification (not recommended for production)
	TLSSkipVerify bool `yaml:"tls_skip_verify"`

	// Timeout bounds each store call (default: 10s)
	Timeout time.Duration `yaml:"timeout"`
}

// Validate checks the configuration and fills in defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("vault address is required")
	}
	if c.Token == "" {
		return fmt.Errorf("vault token is required")
	}
	if c.MountPath == "" {
		c.MountPath = defaultMountPath
	}
	if c.BasePath == "" {
		c.BasePath = defaultBasePath
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// kvClient is the subset of *vault.KVv2 the store uses.
type kvClient interface {
	Get(ctx context.Context, secretPath string) (*vault.KVSecret, error)
	Put(ctx context.Context, secretPath string, data map[string]interface{}, opts ...vault.KVOption) (*vault.KVSecret, error)
	DeleteMetadata(ctx context.Context, secretPath string) error
}

// Store is a storage.StateStore for one key in Vault.
type Store struct {
	kv      kvClient
	base    string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

var _ storage.StateStore = (*Store)(nil)

// New creates a Vault client from config and returns a store for the key
// called name.
func New(config *Config, name string) (*Store, error) {
	if config == nil {
		return nil, fmt.Errorf("vault storage: config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("vault storage: config validation failed: %w", err)
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address

	if config.TLSSkipVerify {
		tlsConfig := &vault.TLSConfig{
			Insecure: true,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("vault storage: failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("vault storage: failed to create client: %w", err)
	}
	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}

	return newStore(client.KVv2(config.MountPath), config, name), nil
}

func newStore(kv kvClient, config *Config, name string) *Store {
	return &Store{
		kv:      kv,
		base:    path.Join(config.BasePath, name),
		timeout: config.Timeout,
	}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") || name == "." || name == ".." {
		return fmt.Errorf("vault storage: %w: %q", storage.ErrInvalidID, name)
	}
	return nil
}

func (s *Store) secretPath(part types.KeyPart) string {
	return path.Join(s.base, part.String())
}

func (s *Store) opContext() (context.Context, context.CancelFunc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, storage.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	return ctx, cancel, nil
}

// Store writes data into an empty slot with check-and-set version 0.
func (s *Store) Store(part types.KeyPart, data []byte) error {
	if err := storage.ValidatePart(part); err != nil {
		return err
	}
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	_, err = s.kv.Put(ctx, s.secretPath(part), encode(data), vault.WithCheckAndSet(0))
	if err != nil {
		if isCheckAndSetFailure(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("vault storage: failed to store %s: %w", part, err)
	}
	return nil
}

// StoreStatefulPart reads the current version of the stateful secret and
// writes the new value conditioned on that version.
func (s *Store) StoreStatefulPart(expected, data []byte) error {
	if len(expected) != len(data) {
		return storage.ErrSizeMismatch
	}
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	secretPath := s.secretPath(types.PrivateStateful)
	current, version, err := s.read(ctx, secretPath)
	if err != nil {
		return s.wrap("load stateful part", err)
	}
	defer storage.Zeroize(current)

	if err := storage.CheckSwap(current, expected, data); err != nil {
		return err
	}

	_, err = s.kv.Put(ctx, secretPath, encode(data), vault.WithCheckAndSet(version))
	if err != nil {
		if isCheckAndSetFailure(err) {
			return storage.ErrContentMismatch
		}
		return fmt.Errorf("vault storage: failed to compare-and-swap stateful part: %w", err)
	}
	return nil
}

// Load returns the latest version of the slot.
func (s *Store) Load(part types.KeyPart) ([]byte, error) {
	if err := storage.ValidatePart(part); err != nil {
		return nil, err
	}
	ctx, cancel, err := s.opContext()
	if err != nil {
		return nil, err
	}
	defer cancel()

	value, _, err := s.read(ctx, s.secretPath(part))
	if err != nil {
		return nil, s.wrap("load "+part.String(), err)
	}
	return value, nil
}

// DeletePublicPart destroys all versions of the public secret.
func (s *Store) DeletePublicPart() error {
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	if err := s.kv.DeleteMetadata(ctx, s.secretPath(types.Public)); err != nil {
		return fmt.Errorf("vault storage: failed to delete public part: %w", err)
	}
	return nil
}

// Purge destroys all versions of every slot. Vault treats metadata deletion
// of a missing secret as success.
func (s *Store) Purge() error {
	ctx, cancel, err := s.opContext()
	if err != nil {
		return err
	}
	defer cancel()

	var errs []error
	for _, part := range types.KeyParts {
		if err := s.kv.DeleteMetadata(ctx, s.secretPath(part)); err != nil {
			errs = append(errs, fmt.Errorf("vault storage: failed to purge %s: %w", part, err))
		}
	}
	return errors.Join(errs...)
}

// Close marks the store closed. The HTTP client holds no resources that
// need explicit release.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) read(ctx context.Context, secretPath string) ([]byte, int, error) {
	secret, err := s.kv.Get(ctx, secretPath)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, 0, storage.ErrNotFound
		}
		return nil, 0, err
	}
	if secret == nil || secret.Data == nil {
		// Latest version soft-deleted.
		return nil, 0, storage.ErrNotFound
	}

	raw, ok := secret.Data[dataField].(string)
	if !ok {
		return nil, 0, fmt.Errorf("secret %s has no %q field", secretPath, dataField)
	}
	value, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("secret %s is not valid base64: %w", secretPath, err)
	}

	version := 0
	if secret.VersionMetadata != nil {
		version = secret.VersionMetadata.Version
	}
	return value, version, nil
}

func (s *Store) wrap(op string, err error) error {
	if storage.IsContractError(err) {
		return err
	}
	return fmt.Errorf("vault storage: failed to %s: %w", op, err)
}

func encode(data []byte) map[string]interface{} {
	return map[string]interface{}{
		dataField: base64.StdEncoding.EncodeToString(data),
	}
}

// isCheckAndSetFailure reports whether Vault rejected a write because the
// check-and-set version did not match.
func isCheckAndSetFailure(err error) bool {
	var respErr *vault.ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusBadRequest {
		return false
	}
	for _, msg := range respErr.Errors {
		if strings.Contains(msg, "check-and-set") {
			return true
		}
	}
	return false
}
