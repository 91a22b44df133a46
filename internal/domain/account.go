package domain

import "time"

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"` // bcrypt hash
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	OwnerUUID string    `json:"ownerUuid,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type SSHKey struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Key         string    `json:"key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VlanReservation claims a VLAN id for an owner. The (OwnerUUID, VlanID) pair
// is unique.
type VlanReservation struct {
	ID        string    `json:"id"`
	OwnerUUID string    `json:"ownerUuid"`
	VlanID    int       `json:"vlanId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
