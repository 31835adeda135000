package roles

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/infotospay/benkinet-neo01-mobile-sub000/apierr"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/credentials"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/internal/utils"
	"github.com/infotospay/benkinet-neo01-mobile-sub000/transport"
)

const (
	RouteRoles      = "/auth/user/roles"
	RouteRoleSwitch = "/auth/user/roles/switch"
)

// Authenticator is the slice of the session manager the registry needs.
type Authenticator interface {
	IsAuthenticated() bool
	OnLogin(func(ctx context.Context) error)
	OnLogout(func())
}

// Registry holds the available role set and the active role.
type Registry struct {
	client   *transport.Client
	sess     Authenticator
	profiles credentials.ProfileStore

	lock      sync.RWMutex
	available []Info
	active    *Info
}

// New creates a role registry and wires itself into the session lifecycle:
// roles reload after every login, reset on logout, and the active role feeds
// the transport client's role header.
func New(client *transport.Client, sess Authenticator, profiles credentials.ProfileStore) (*Registry, error) {
	if client == nil {
		return nil, errors.New("[roles.New] client is required")
	}
	if sess == nil {
		return nil, errors.New("[roles.New] session manager is required")
	}
	if profiles == nil {
		return nil, errors.New("[roles.New] profile store is required")
	}

	r := &Registry{
		client:   client,
		sess:     sess,
		profiles: profiles,
	}
	sess.OnLogin(func(ctx context.Context) error {
		_, err := r.LoadRoles(ctx)
		return err
	})
	sess.OnLogout(r.Reset)
	client.SetRoleProvider(r)
	return r, nil
}

// LoadRoles fetches the role set for the current session. When logged out it
// returns an empty set without touching the network. The previously active
// role survives a reload when still present; otherwise the active role falls
// back to CUSTOMER, then the first entry, then none.
func (r *Registry) LoadRoles(ctx context.Context) ([]Info, error) {
	if !r.sess.IsAuthenticated() {
		return []Info{}, nil
	}

	var fetched []Info
	if err := r.client.Get(ctx, RouteRoles, &fetched); err != nil {
		return nil, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	r.available = dedupeByID(fetched)

	previousID := ""
	if r.active != nil {
		previousID = r.active.ID
	} else {
		// Cold start: the role that was active before the app restarted.
		previousID = r.profiles.LoadActiveRole()
	}
	r.active = pickActive(r.available, previousID)
	r.persistActive()

	return append([]Info(nil), r.available...), nil
}

// SwitchRole makes roleID the active role. Switching to the already-active
// role is a local no-op. The backend switch call happens before any local
// mutation, so a failed switch leaves the active role untouched.
func (r *Registry) SwitchRole(ctx context.Context, roleID string) (*Info, error) {
	r.lock.RLock()
	if r.active != nil && r.active.ID == roleID {
		current := *r.active
		r.lock.RUnlock()
		return &current, nil
	}
	target, ok := findByID(r.available, roleID)
	r.lock.RUnlock()

	if !ok {
		return nil, apierr.New(apierr.NotFound, "unknown role "+roleID)
	}
	if target.Status != StatusActive {
		return nil, apierr.New(apierr.Forbidden, "role "+roleID+" is not active")
	}

	var switched Info
	if err := r.client.Post(ctx, RouteRoleSwitch, switchRequest{RoleID: roleID}, &switched); err != nil {
		return nil, err
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	// The set may have been reloaded while the switch was in flight; only
	// accept the switch if the role is still a member.
	confirmed, ok := findByID(r.available, switched.ID)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "role "+switched.ID+" no longer available")
	}
	r.active = utils.Ptr(confirmed)
	r.persistActive()

	log.Info().Str("roleID", confirmed.ID).Str("kind", string(confirmed.Kind)).Msg("active role switched")
	return utils.Ptr(confirmed), nil
}

// Reset clears the role set and active role. Called on logout.
func (r *Registry) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.available = nil
	r.active = nil
	if err := r.profiles.SaveActiveRole(""); err != nil {
		log.Debug().Err(err).Msg("active role clear failed")
	}
}

// Active returns a copy of the active role, or nil when none is set.
func (r *Registry) Active() *Info {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.active == nil {
		return nil
	}
	return utils.Ptr(*r.active)
}

// Available returns a copy of the loaded role set.
func (r *Registry) Available() []Info {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]Info(nil), r.available...)
}

// ActiveRoleID implements transport.RoleProvider.
func (r *Registry) ActiveRoleID() (string, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	if r.active == nil {
		return "", false
	}
	return r.active.ID, true
}

type switchRequest struct {
	RoleID string `json:"roleId"`
}

// persistActive records the active role ID; callers hold the write lock.
func (r *Registry) persistActive() {
	id := ""
	if r.active != nil {
		id = r.active.ID
	}
	if err := r.profiles.SaveActiveRole(id); err != nil {
		log.Debug().Err(err).Msg("active role persist failed")
	}
}

// pickActive applies the default priority: previous role when still present,
// then CUSTOMER, then the first entry, then none.
func pickActive(available []Info, previousID string) *Info {
	if previousID != "" {
		if info, ok := findByID(available, previousID); ok {
			return utils.Ptr(info)
		}
	}
	for _, info := range available {
		if info.Kind == KindCustomer {
			return utils.Ptr(info)
		}
	}
	if len(available) > 0 {
		return utils.Ptr(available[0])
	}
	return nil
}

func findByID(available []Info, roleID string) (Info, bool) {
	for _, info := range available {
		if info.ID == roleID {
			return info, true
		}
	}
	return Info{}, false
}

func dedupeByID(roles []Info) []Info {
	seen := make(map[string]struct{}, len(roles))
	out := make([]Info, 0, len(roles))
	for _, info := range roles {
		if _, ok := seen[info.ID]; ok {
			continue
		}
		seen[info.ID] = struct{}{}
		out = append(out, info)
	}
	return out
}
