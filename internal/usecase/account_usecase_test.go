package usecase

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/zinrai/fabric-portal/internal/domain"
)

func newAccounts() (*AccountUseCase, *memStore) {
	store := newMemStore()
	uc := NewAccountUseCase(store.factory())
	uc.passwordCost = bcrypt.MinCost
	return uc, store
}

func strPtr(s string) *string { return &s }

func TestAccountUseCaseUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("create hashes the password", func(t *testing.T) {
		uc, store := newAccounts()
		user, err := uc.CreateUser(ctx, NewUser{
			Username:  "alice",
			Password:  "s3cret",
			Email:     "alice@example.com",
			OwnerUUID: "930896AF-BF8C-48D4-885C-6573A94B1853",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, owner, user.OwnerUUID)
		assert.NotEqual(t, "s3cret", store.users[user.ID].Password)
		assert.True(t, passwordMatches(store.users[user.ID], "s3cret"))
		assert.False(t, passwordMatches(store.users[user.ID], "wrong"))
	})

	t.Run("validation", func(t *testing.T) {
		uc, _ := newAccounts()
		tests := []struct {
			in    NewUser
			field string
		}{
			{NewUser{Password: "x", Email: "a@example.com"}, "username"},
			{NewUser{Username: "a", Password: "x", Email: "nope"}, "email"},
			{NewUser{Username: "a", Email: "a@example.com"}, "password"},
			{NewUser{Username: "a", Password: "x", Email: "a@example.com", OwnerUUID: "not-a-uuid"}, "ownerUuid"},
		}
		for _, tt := range tests {
			t.Run(tt.field, func(t *testing.T) {
				_, err := uc.CreateUser(ctx, tt.in)
				verr, ok := domain.IsValidation(err)
				require.True(t, ok)
				assert.Equal(t, tt.field, verr.Field)
			})
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		uc, _ := newAccounts()
		in := NewUser{Username: "bob", Password: "x", Email: "bob@example.com"}
		_, err := uc.CreateUser(ctx, in)
		require.NoError(t, err)
		_, err = uc.CreateUser(ctx, in)
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("update applies only supplied fields", func(t *testing.T) {
		uc, store := newAccounts()
		store.addUser("user-1", owner)

		user, err := uc.UpdateUser(ctx, "user-1", UserChanges{FirstName: strPtr("Carol")})
		require.NoError(t, err)
		assert.Equal(t, "Carol", user.FirstName)
		assert.Equal(t, "user-1@example.com", user.Email)
		assert.Equal(t, "Carol", store.users["user-1"].FirstName)
	})

	t.Run("invalid update leaves the user untouched", func(t *testing.T) {
		uc, store := newAccounts()
		store.addUser("user-1", owner)

		_, err := uc.UpdateUser(ctx, "user-1", UserChanges{Email: strPtr("broken")})
		_, ok := domain.IsValidation(err)
		assert.True(t, ok)
		assert.Equal(t, "user-1@example.com", store.users["user-1"].Email)
	})

	t.Run("change password", func(t *testing.T) {
		uc, store := newAccounts()
		store.addUser("user-1", owner)

		require.NoError(t, uc.ChangePassword(ctx, "user-1", "n3w"))
		assert.True(t, passwordMatches(store.users["user-1"], "n3w"))
		assert.True(t, errors.Is(uc.ChangePassword(ctx, "missing", "n3w"), domain.ErrNotFound))
	})

	t.Run("delete removes ssh keys", func(t *testing.T) {
		uc, store := newAccounts()
		store.addUser("user-1", owner)
		store.addUser("user-2", "")
		_, err := uc.AddSSHKey(ctx, "user-1", "ssh-ed25519 AAAA one", "laptop")
		require.NoError(t, err)
		_, err = uc.AddSSHKey(ctx, "user-2", "ssh-ed25519 AAAA two", "")
		require.NoError(t, err)

		require.NoError(t, uc.DeleteUser(ctx, "user-1"))
		assert.NotContains(t, store.users, "user-1")
		require.Len(t, store.keys, 1)
		for _, k := range store.keys {
			assert.Equal(t, "user-2", k.UserID)
		}
	})

	t.Run("delete of a missing user keeps other keys", func(t *testing.T) {
		uc, store := newAccounts()
		store.addUser("user-1", owner)
		_, err := uc.AddSSHKey(ctx, "user-1", "ssh-ed25519 AAAA one", "")
		require.NoError(t, err)

		err = uc.DeleteUser(ctx, "missing")
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.Len(t, store.keys, 1)
	})
}

func TestAccountUseCaseSSHKeys(t *testing.T) {
	ctx := context.Background()
	uc, store := newAccounts()
	store.addUser("user-1", owner)

	key, err := uc.AddSSHKey(ctx, "user-1", "  ssh-ed25519 AAAA one  ", "laptop")
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519 AAAA one", key.Key)

	keys, err := uc.ListSSHKeys(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "laptop", keys[0].Description)

	_, err = uc.AddSSHKey(ctx, "user-1", " ", "")
	_, ok := domain.IsValidation(err)
	assert.True(t, ok)

	_, err = uc.AddSSHKey(ctx, "missing", "ssh-ed25519 AAAA", "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = uc.ListSSHKeys(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	assert.True(t, errors.Is(uc.DeleteSSHKey(ctx, "user-2", key.ID), domain.ErrNotFound))
	require.NoError(t, uc.DeleteSSHKey(ctx, "user-1", key.ID))
	assert.Empty(t, store.keys)
}

func passwordMatches(user *domain.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
}
