// Package secrets provides an encrypted-at-rest key-value store for the
// credentials transport implementations need. Values are sealed with
// AES-256-GCM; every operation lands in an append-only access log.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// EnvKeyName is the environment variable holding the store key.
const EnvKeyName = "FOREMAN_SECRETS_KEY"

// ErrNotFound indicates the named secret does not exist.
var ErrNotFound = errors.New("secret not found")

// ErrNoKey indicates no encryption key is configured.
var ErrNoKey = errors.New("no secrets key configured: set " + EnvKeyName + " or provide a key file")

// AccessEntry is one append-only access log line.
type AccessEntry struct {
	// Operation is get, set, delete, or list.
	Operation string `json:"operation"`
	// Key is the secret name involved; empty for list.
	Key string `json:"key,omitempty"`
	// Timestamp is when the operation happened.
	Timestamp time.Time `json:"timestamp"`
}

// storeFile is the on-disk format. Values are base64(nonce || ciphertext).
type storeFile struct {
	Values map[string]string `json:"values"`
}

// Store is the encrypted key-value store. Safe for concurrent use.
type Store struct {
	path string
	gcm  cipher.AEAD

	mu     sync.Mutex
	values map[string]string
	log    []AccessEntry
}

// KeyFromEnv derives the AES key from FOREMAN_SECRETS_KEY, falling back
// to the given key file when the variable is unset.
func KeyFromEnv(keyFile string) ([]byte, error) {
	material := os.Getenv(EnvKeyName)
	if material == "" && keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err == nil {
			material = strings.TrimSpace(string(data))
		}
	}
	if material == "" {
		return nil, ErrNoKey
	}
	// Accept raw hex-encoded 32-byte keys; hash anything else down to size.
	if decoded, err := hex.DecodeString(material); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	sum := sha256.Sum256([]byte(material))
	return sum[:], nil
}

// Open loads (or initializes) the store at path using a 32-byte key.
func Open(path string, key []byte) (*Store, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("secrets key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}

	s := &Store{
		path:   path,
		gcm:    gcm,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var f storeFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
		if f.Values != nil {
			s.values = f.Values
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	return s, nil
}

// Set stores a secret under name, replacing any previous value.
func (s *Store) Set(name, value string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("secret name must not be empty")
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(value), []byte(name))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[name] = base64.StdEncoding.EncodeToString(sealed)
	s.record("set", name)
	return s.persistLocked()
}

// Get decrypts and returns the secret stored under name.
func (s *Store) Get(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("get %s: %w", name, ErrNotFound)
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode secret %s: %w", name, err)
	}
	if len(sealed) < s.gcm.NonceSize() {
		return "", fmt.Errorf("secret %s is corrupt", name)
	}
	nonce, ciphertext := sealed[:s.gcm.NonceSize()], sealed[s.gcm.NonceSize():]
	plain, err := s.gcm.Open(nil, nonce, ciphertext, []byte(name))
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s: %w", name, err)
	}

	s.record("get", name)
	return string(plain), nil
}

// Delete removes the secret stored under name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}
	delete(s.values, name)
	s.record("delete", name)
	return s.persistLocked()
}

// List returns all secret names, sorted.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	sort.Strings(names)
	s.record("list", "")
	return names
}

// AccessLog returns a copy of the access log in append order.
func (s *Store) AccessLog() []AccessEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]AccessEntry, len(s.log))
	copy(out, s.log)
	return out
}

// record appends to the access log. Caller holds the lock.
func (s *Store) record(op, key string) {
	s.log = append(s.log, AccessEntry{Operation: op, Key: key, Timestamp: time.Now()})
}

// persistLocked writes the encrypted values to disk. Caller holds the lock.
func (s *Store) persistLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	data, err := json.MarshalIndent(storeFile{Values: s.values}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}
