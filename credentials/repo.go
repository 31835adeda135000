package credentials

import "errors"

// ErrStorageUnavailable is returned when the platform secure storage cannot
// be opened for writing (missing key, unavailable enclave, full disk).
var ErrStorageUnavailable = errors.New("secure storage unavailable")

// Store is the vault for the token pair. Implementations must write the pair
// atomically: a concurrent Load must never observe a half-replaced pair.
type Store interface {
	// Save persists the credentials, replacing any previous pair.
	Save(creds *Credentials) error

	// Load returns the stored credentials, or nil when nothing is stored or
	// the stored blob cannot be read or decrypted. Load never fails: an
	// unreadable vault means the user is logged out.
	Load() *Credentials

	// Clear removes the stored credentials. Clearing an empty vault is not
	// an error.
	Clear() error
}

// ProfileStore is the lower-sensitivity area holding the cached user profile
// and the persisted active role. It is not required to be hardware-backed.
type ProfileStore interface {
	// SaveProfile caches the user profile for display.
	SaveProfile(profile UserProfile) error

	// LoadProfile returns the cached profile, or nil when absent or unreadable.
	LoadProfile() UserProfile

	// SaveActiveRole records the active role ID so it survives app restarts.
	SaveActiveRole(roleID string) error

	// LoadActiveRole returns the recorded active role ID, or "" when none.
	LoadActiveRole() string

	// ClearProfile removes the cached profile and active role.
	ClearProfile() error
}
