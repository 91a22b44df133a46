package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
)

const userColumns = `id, username, password, first_name, last_name, email, owner_uuid, created_at, updated_at`

type UserRepository struct {
	s *Session
}

type userRow struct {
	domain.User
	ownerUUID sql.NullString
}

func (u *userRow) dest() []any {
	return []any{&u.ID, &u.Username, &u.Password, &u.FirstName, &u.LastName, &u.Email, &u.ownerUUID, &u.CreatedAt, &u.UpdatedAt}
}

func (u *userRow) user() *domain.User {
	user := u.User
	user.OwnerUUID = u.ownerUUID.String
	return &user
}

func (r *UserRepository) List(ctx context.Context) ([]*domain.User, error) {
	r.s.logger.Info("fetching all users")

	rows, err := r.s.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		var u userRow
		if err := rows.Scan(u.dest()...); err != nil {
			return nil, errors.Wrap(r.s.fail(err), "failed to scan user row")
		}
		users = append(users, u.user())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(r.s.fail(err), "failed to list users")
	}
	return users, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.logger.WithField("id", id).Info("fetching user")
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByOwnerUUID(ctx context.Context, ownerUUID string) (*domain.User, error) {
	r.s.logger.WithField("owner_uuid", ownerUUID).Info("fetching user")
	return r.getBy(ctx, "owner_uuid", ownerUUID)
}

// getBy looks a user up by a unique column. column is never caller supplied.
func (r *UserRepository) getBy(ctx context.Context, column, value string) (*domain.User, error) {
	var u userRow
	err := r.s.scanRow(ctx, u.dest(), `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(domain.ErrNotFound, "user with %s %q", column, value)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	return u.user(), nil
}

// Create inserts user. Password must already be hashed.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.s.logger.WithField("username", user.Username).Info("creating user")

	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.s.exec(ctx, query, user.ID, user.Username, user.Password, user.FirstName, user.LastName,
		user.Email, nullString(user.OwnerUUID), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to create user")
	}
	return nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	r.s.logger.WithField("id", user.ID).Info("updating user")

	user.UpdatedAt = time.Now().UTC()
	query := `UPDATE users SET username = $1, first_name = $2, last_name = $3, email = $4, owner_uuid = $5, updated_at = $6 WHERE id = $7`
	result, err := r.s.exec(ctx, query, user.Username, user.FirstName, user.LastName, user.Email,
		nullString(user.OwnerUUID), user.UpdatedAt, user.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update user")
	}
	return expectAffected(result, "user")
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	r.s.logger.WithField("id", id).Info("updating password for user")

	query := `UPDATE users SET password = $1, updated_at = $2 WHERE id = $3`
	result, err := r.s.exec(ctx, query, hash, time.Now().UTC(), id)
	if err != nil {
		return errors.Wrap(err, "failed to update password")
	}
	return expectAffected(result, "user")
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	r.s.logger.WithField("id", id).Info("deleting user")

	result, err := r.s.exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete user")
	}
	return expectAffected(result, "user")
}
