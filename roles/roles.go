// Package roles resolves and switches the active role scoping every wallet,
// payment, and commission call. The invariant held at every mutation: the
// active role, when set, is always a member of the loaded role set.
package roles

// Kind is the closed set of role categories a Benkinet user can hold.
type Kind string

const (
	KindCustomer   Kind = "CUSTOMER"
	KindMerchant   Kind = "MERCHANT"
	KindAgent      Kind = "AGENT"
	KindSuperAgent Kind = "SUPER_AGENT"
)

// Status is the lifecycle state of a role. Only ACTIVE roles can be switched
// to.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPending   Status = "PENDING"
	StatusSuspended Status = "SUSPENDED"
)

// Info describes one role a user holds. Roles are unique by ID.
type Info struct {
	Kind        Kind   `json:"role"`
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Status      Status `json:"status"`
}
