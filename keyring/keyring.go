// Package keyring persists the tunnel state in the system keyring.
// It uses the Secret Service when available, falling back to an
// encrypted local file when not.
package keyring

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"

	"github.com/yllada/vpn-bridge/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "vpn-bridge"
	probeKey    = "vpn-bridge-probe"
)

// Common errors returned by keyring operations.
var (
	ErrEmptyKey  = errors.New("key cannot be empty")
	ErrCorrupted = errors.New("local secret file cannot be decrypted")
)

// Store is a common.KVStore over the system keyring.
type Store struct {
	mu       sync.RWMutex
	useLocal bool
	local    map[string]string
	file     string
	key      []byte
}

// New returns a Store. dir holds the encrypted fallback file, used when the
// system keyring refuses a probe write.
func New(dir string) (*Store, error) {
	s := &Store{file: filepath.Join(dir, common.SecretFileName)}

	err := keyring.Set(serviceName, probeKey, "probe")
	if err == nil {
		keyring.Delete(serviceName, probeKey)
		return s, nil
	}

	common.LogWarn("System keyring unavailable, using encrypted file: %v", err)
	if err := s.initLocal(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFileStore returns a Store that always uses the encrypted file in dir.
func NewFileStore(dir string) (*Store, error) {
	s := &Store{file: filepath.Join(dir, common.SecretFileName)}
	if err := s.initLocal(); err != nil {
		return nil, err
	}
	return s, nil
}

// UsesLocalFile reports whether the encrypted fallback file is in use.
func (s *Store) UsesLocalFile() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useLocal
}

func (s *Store) initLocal() error {
	if err := common.EnsureDir(filepath.Dir(s.file)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	key, err := deriveKey()
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.useLocal = true
	s.key = key
	s.local = make(map[string]string)
	return s.loadLocal()
}

// deriveKey derives the file key from machine-specific data.
func deriveKey() ([]byte, error) {
	hostname, _ := os.Hostname()
	secret := fmt.Sprintf("%s-%s-%d", hostname, getMachineID(), os.Getuid())

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), []byte(serviceName), []byte("tunnel-state"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func getMachineID() string {
	data, err := os.ReadFile("/etc/machine-id")
	if err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default-machine-id"
}

// loadLocal reads the encrypted file. Callers hold s.mu.
func (s *Store) loadLocal() error {
	data, err := os.ReadFile(s.file)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}

	decrypted, err := s.decrypt(data)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, ErrCorrupted)
	}

	if err := json.Unmarshal(decrypted, &s.local); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, ErrCorrupted)
	}
	return nil
}

// saveLocal writes the encrypted file. Callers hold s.mu.
func (s *Store) saveLocal() error {
	data, err := json.Marshal(s.local)
	if err != nil {
		return err
	}

	encrypted, err := s.encrypt(data)
	if err != nil {
		return err
	}

	return os.WriteFile(s.file, encrypted, 0600)
}

func (s *Store) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func (s *Store) decrypt(data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// Set stores value under key. A keyring failure switches the store to the
// encrypted file for the rest of its life.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !s.UsesLocalFile() {
		err := keyring.Set(serviceName, key, value)
		if err == nil {
			return nil
		}
		common.LogWarn("Keyring write failed, falling back to encrypted file: %v", err)
		if err := s.initLocal(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = value
	if err := s.saveLocal(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	if s.UsesLocalFile() {
		s.mu.RLock()
		value, exists := s.local[key]
		s.mu.RUnlock()
		return value, exists, nil
	}

	value, err := keyring.Get(serviceName, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return value, true, nil
}

// Delete removes key from the keyring and the local file.
func (s *Store) Delete(key string) error {
	if key == "" {
		return ErrEmptyKey
	}

	if s.UsesLocalFile() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.local, key)
		return s.saveLocal()
	}

	if err := keyring.Delete(serviceName, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", common.ErrStorage, err)
	}
	return nil
}

// Close is a no-op; the keyring holds no open resources.
func (s *Store) Close() error {
	return nil
}
