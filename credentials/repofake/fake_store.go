package repofake

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)
var _ credentials.ProfileStore = (*FakeStore)(nil)

// FakeStore is an in-memory credential store for tests.
type FakeStore struct {
	lock       sync.RWMutex
	creds      *credentials.Credentials
	profile    credentials.UserProfile
	activeRole string

	// FailSave makes every Save fail with ErrStorageUnavailable.
	FailSave bool
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Save(creds *credentials.Credentials) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	if fs.FailSave {
		return errors.Wrap(credentials.ErrStorageUnavailable, "[FakeStore.Save]")
	}
	c := *creds
	fs.creds = &c
	return nil
}

func (fs *FakeStore) Load() *credentials.Credentials {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	if fs.creds == nil {
		return nil
	}
	c := *fs.creds
	return &c
}

func (fs *FakeStore) Clear() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.creds = nil
	return nil
}

func (fs *FakeStore) SaveProfile(profile credentials.UserProfile) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.profile = profile
	return nil
}

func (fs *FakeStore) LoadProfile() credentials.UserProfile {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.profile
}

func (fs *FakeStore) SaveActiveRole(roleID string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.activeRole = roleID
	return nil
}

func (fs *FakeStore) LoadActiveRole() string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.activeRole
}

func (fs *FakeStore) ClearProfile() error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.profile = nil
	fs.activeRole = ""
	return nil
}
