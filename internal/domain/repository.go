package domain

import (
	"context"
)

type UserRepository interface {
	List(ctx context.Context) ([]*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByOwnerUUID(ctx context.Context, ownerUUID string) (*User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, hash string) error
	Delete(ctx context.Context, id string) error
}

type SSHKeyRepository interface {
	ListByUser(ctx context.Context, userID string) ([]*SSHKey, error)
	Create(ctx context.Context, key *SSHKey) error
	Delete(ctx context.Context, userID, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

type VlanRepository interface {
	ListByOwner(ctx context.Context, ownerUUID string) ([]*VlanReservation, error)
	Create(ctx context.Context, ownerUUID string, vlanID int) (*VlanReservation, error)
	Delete(ctx context.Context, ownerUUID string, vlanID int) error
}

// UnitOfWork scopes a single inbound operation's database access. It holds at
// most one open transaction, and the repositories it hands out share it.
type UnitOfWork interface {
	BeginTransaction(ctx context.Context) error
	CommitTransaction() error
	RollbackTransaction() error
	InTransaction() bool
	Users() UserRepository
	SSHKeys() SSHKeyRepository
	VlanIDs() VlanRepository
	Close() error
}

// UnitOfWorkFactory opens a fresh unit of work.
type UnitOfWorkFactory func(ctx context.Context) UnitOfWork
