package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zinrai/fabric-portal/internal/domain"
)

type SSHKeyRepository struct {
	s *Session
}

func (r *SSHKeyRepository) ListByUser(ctx context.Context, userID string) ([]*domain.SSHKey, error) {
	r.s.logger.WithField("user_id", userID).Info("fetching ssh keys for user")

	query := `SELECT id, user_id, key, description, created_at, updated_at FROM ssh_keys WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.s.query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ssh keys")
	}
	defer rows.Close()

	var keys []*domain.SSHKey
	for rows.Next() {
		var k domain.SSHKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Key, &k.Description, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, errors.Wrap(r.s.fail(err), "failed to scan ssh key row")
		}
		keys = append(keys, &k)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(r.s.fail(err), "failed to list ssh keys")
	}
	return keys, nil
}

func (r *SSHKeyRepository) Create(ctx context.Context, key *domain.SSHKey) error {
	r.s.logger.WithField("user_id", key.UserID).Info("creating ssh key")

	now := time.Now().UTC()
	key.ID = uuid.NewString()
	key.CreatedAt = now
	key.UpdatedAt = now

	query := `INSERT INTO ssh_keys (id, user_id, key, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.s.exec(ctx, query, key.ID, key.UserID, key.Key, key.Description, key.CreatedAt, key.UpdatedAt); err != nil {
		return errors.Wrap(err, "failed to create ssh key")
	}
	return nil
}

func (r *SSHKeyRepository) Delete(ctx context.Context, userID, id string) error {
	r.s.logger.WithField("id", id).Info("deleting ssh key")

	result, err := r.s.exec(ctx, `DELETE FROM ssh_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "failed to delete ssh key")
	}
	return expectAffected(result, "ssh key")
}

func (r *SSHKeyRepository) DeleteByUser(ctx context.Context, userID string) error {
	r.s.logger.WithField("user_id", userID).Info("deleting ssh keys for user")

	if _, err := r.s.exec(ctx, `DELETE FROM ssh_keys WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "failed to delete ssh keys")
	}
	return nil
}
