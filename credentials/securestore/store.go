// Package securestore is the device-local credential vault. The token pair is
// sealed with an AEAD (nacl/secretbox) under a key supplied by the host
// application, typically unwrapped from the platform keychain. The profile
// area is a plain JSON file: it holds display data only.
package securestore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials"
)

const (
	tokenFile   = "tokens.bin"
	profileFile = "profile.json"

	nonceSize = 24
)

var _ credentials.Store = (*Store)(nil)
var _ credentials.ProfileStore = (*Store)(nil)

// Store persists credentials and the profile area under a single directory.
type Store struct {
	dir string
	key [32]byte
}

// profileBlob is the on-disk shape of the profile area.
type profileBlob struct {
	Profile    credentials.UserProfile `json:"profile,omitempty"`
	ActiveRole string                  `json:"activeRole,omitempty"`
}

// New creates a vault rooted at dir. The key material may be any length; it
// is stretched to the secretbox key size with SHA-256.
func New(dir string, keyMaterial []byte) (*Store, error) {
	if len(keyMaterial) == 0 {
		return nil, errors.Wrap(credentials.ErrStorageUnavailable, "[securestore.New] empty key material")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(credentials.ErrStorageUnavailable, "[securestore.New] "+err.Error())
	}
	return &Store{
		dir: dir,
		key: sha256.Sum256(keyMaterial),
	}, nil
}

// Save seals and writes the token pair atomically.
func (s *Store) Save(creds *credentials.Credentials) error {
	if creds == nil {
		return errors.New("[securestore.Save] nil credentials")
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "[securestore.Save] marshal")
	}

	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return errors.Wrap(credentials.ErrStorageUnavailable, "[securestore.Save] "+err.Error())
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &s.key)

	if err := s.writeAtomic(tokenFile, sealed); err != nil {
		return errors.Wrap(credentials.ErrStorageUnavailable, "[securestore.Save] "+err.Error())
	}
	return nil
}

// Load opens the vault. Any read, decryption, or decode failure is treated
// as "no credentials stored".
func (s *Store) Load() *credentials.Credentials {
	sealed, err := os.ReadFile(filepath.Join(s.dir, tokenFile))
	if err != nil || len(sealed) <= nonceSize {
		return nil
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil
	}

	var creds credentials.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil
	}
	return &creds
}

// Clear removes the token file. Removing a non-existent file is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(filepath.Join(s.dir, tokenFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "[securestore.Clear]")
	}
	return nil
}

// SaveProfile writes the cached profile, preserving the recorded active role.
func (s *Store) SaveProfile(profile credentials.UserProfile) error {
	blob := s.loadBlob()
	blob.Profile = profile
	return s.saveBlob(blob)
}

// LoadProfile returns the cached profile, or nil when absent or unreadable.
func (s *Store) LoadProfile() credentials.UserProfile {
	return s.loadBlob().Profile
}

// SaveActiveRole records the active role ID alongside the cached profile.
func (s *Store) SaveActiveRole(roleID string) error {
	blob := s.loadBlob()
	blob.ActiveRole = roleID
	return s.saveBlob(blob)
}

// LoadActiveRole returns the recorded active role ID, or "" when none.
func (s *Store) LoadActiveRole() string {
	return s.loadBlob().ActiveRole
}

// ClearProfile removes the profile area. Idempotent.
func (s *Store) ClearProfile() error {
	if err := os.Remove(filepath.Join(s.dir, profileFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrap(err, "[securestore.ClearProfile]")
	}
	return nil
}

func (s *Store) loadBlob() profileBlob {
	var blob profileBlob
	data, err := os.ReadFile(filepath.Join(s.dir, profileFile))
	if err != nil {
		return blob
	}
	_ = json.Unmarshal(data, &blob)
	return blob
}

func (s *Store) saveBlob(blob profileBlob) error {
	data, err := json.Marshal(blob)
	if err != nil {
		return errors.Wrap(err, "[securestore.saveBlob] marshal")
	}
	if err := s.writeAtomic(profileFile, data); err != nil {
		return errors.Wrap(err, "[securestore.saveBlob]")
	}
	return nil
}

// writeAtomic writes via a temp file and rename so a crashed write can never
// leave a half-written blob behind.
func (s *Store) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, filepath.Join(s.dir, name))
}
