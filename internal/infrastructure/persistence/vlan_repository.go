package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/fabric-portal/internal/domain"
)

// VlanRepository stores VLAN id reservations in the vlan_ids table.
type VlanRepository struct {
	s *Session
}

func (r *VlanRepository) ListByOwner(ctx context.Context, ownerUUID string) ([]*domain.VlanReservation, error) {
	r.s.logger.WithField("owner_uuid", ownerUUID).Info("fetching vlan ids for owner")

	query := `SELECT id, owner_uuid, vlan_id, created_at, updated_at FROM vlan_ids WHERE owner_uuid = $1 ORDER BY vlan_id`
	rows, err := r.s.query(ctx, query, ownerUUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vlan ids")
	}
	defer rows.Close()

	var reservations []*domain.VlanReservation
	for rows.Next() {
		var v domain.VlanReservation
		if err := rows.Scan(&v.ID, &v.OwnerUUID, &v.VlanID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, errors.Wrap(r.s.fail(err), "failed to scan vlan id row")
		}
		reservations = append(reservations, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(r.s.fail(err), "failed to list vlan ids")
	}
	return reservations, nil
}

// Create inserts a reservation. A reservation that already exists for the
// owner fails with domain.ErrConflict.
func (r *VlanRepository) Create(ctx context.Context, ownerUUID string, vlanID int) (*domain.VlanReservation, error) {
	r.s.logger.WithFields(logrus.Fields{"owner_uuid": ownerUUID, "vlan_id": vlanID}).Info("creating vlan id")

	now := time.Now().UTC()
	v := &domain.VlanReservation{
		ID:        uuid.NewString(),
		OwnerUUID: ownerUUID,
		VlanID:    vlanID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	query := `INSERT INTO vlan_ids (id, owner_uuid, vlan_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.s.exec(ctx, query, v.ID, v.OwnerUUID, v.VlanID, v.CreatedAt, v.UpdatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to create vlan id %d", vlanID)
	}
	return v, nil
}

func (r *VlanRepository) Delete(ctx context.Context, ownerUUID string, vlanID int) error {
	r.s.logger.WithFields(logrus.Fields{"owner_uuid": ownerUUID, "vlan_id": vlanID}).Info("deleting vlan id")

	query := `DELETE FROM vlan_ids WHERE owner_uuid = $1 AND vlan_id = $2`
	result, err := r.s.exec(ctx, query, ownerUUID, vlanID)
	if err != nil {
		return errors.Wrapf(err, "failed to delete vlan id %d", vlanID)
	}
	return expectAffected(result, "vlan id")
}
