package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
	"github.com/zinrai/fabric-portal/internal/metrics"
)

const (
	DefaultMinVlanID = 2
	DefaultMaxVlanID = 4094
)

// NextFreeVlanID returns the lowest id in [minID, maxID] absent from reserved.
func NextFreeVlanID(reserved map[int]struct{}, minID, maxID int) (int, error) {
	for candidate := minID; candidate <= maxID; candidate++ {
		if _, taken := reserved[candidate]; !taken {
			return candidate, nil
		}
	}
	return 0, errors.Wrapf(domain.ErrAllocationExhausted, "all ids between %d and %d are reserved", minID, maxID)
}

type VlanOptions struct {
	MinID      int
	MaxID      int
	MaxRetries int
}

// VlanAllocator hands out per-owner VLAN ids. A reservation is only kept when
// the fabric accepted the VLAN, and a fabric VLAN is only deleted together
// with its reservation.
type VlanAllocator struct {
	newUnitOfWork domain.UnitOfWorkFactory
	network       domain.NetworkClient
	opts          VlanOptions
	metrics       *metrics.Registry
	locks         ownerLocks
}

func NewVlanAllocator(newUnitOfWork domain.UnitOfWorkFactory, network domain.NetworkClient, opts VlanOptions, m *metrics.Registry) *VlanAllocator {
	if opts.MinID < DefaultMinVlanID {
		opts.MinID = DefaultMinVlanID
	}
	if opts.MaxID <= 0 || opts.MaxID > DefaultMaxVlanID {
		opts.MaxID = DefaultMaxVlanID
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &VlanAllocator{
		newUnitOfWork: newUnitOfWork,
		network:       network,
		opts:          opts,
		metrics:       m,
		locks:         ownerLocks{held: make(map[string]*ownerLock)},
	}
}

// Reserved returns the owner's VLAN ids as the union of local reservations
// and the VLANs the fabric reports, sorted.
func (a *VlanAllocator) Reserved(ctx context.Context, ownerUUID string) ([]int, error) {
	known, err := a.remoteIDs(ctx, ownerUUID)
	if err != nil {
		return nil, err
	}

	uow := a.newUnitOfWork(ctx)
	defer uow.Close()
	local, err := uow.VlanIDs().ListByOwner(ctx, ownerUUID)
	if err != nil {
		return nil, err
	}
	for _, r := range local {
		known[r.VlanID] = struct{}{}
	}

	ids := make([]int, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Allocate reserves the lowest free VLAN id for the owner and creates the VLAN
// on the fabric. A candidate rejected as already in use, locally or remotely,
// is added to the known set and the scan is retried up to MaxRetries times.
func (a *VlanAllocator) Allocate(ctx context.Context, ownerUUID, name string) (*domain.VlanReservation, error) {
	unlock := a.locks.lock(ownerUUID)
	defer unlock()

	logger := log.G(ctx).WithField("owner_uuid", ownerUUID)

	known, err := a.remoteIDs(ctx, ownerUUID)
	if err != nil {
		a.metrics.VlanAllocations.WithLabelValues("error").Inc()
		return nil, err
	}

	for attempt := 0; attempt <= a.opts.MaxRetries; attempt++ {
		reservation, candidate, err := a.tryAllocate(ctx, ownerUUID, name, known)
		if err == nil {
			a.metrics.VlanAllocations.WithLabelValues("ok").Inc()
			logger.WithField("vlan_id", reservation.VlanID).Info("vlan allocated")
			return reservation, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			a.metrics.VlanAllocations.WithLabelValues("error").Inc()
			return nil, err
		}
		a.metrics.VlanConflicts.Inc()
		logger.WithFields(logrus.Fields{"vlan_id": candidate, "attempt": attempt}).Warn("vlan id already in use, retrying")
		known[candidate] = struct{}{}
	}

	a.metrics.VlanAllocations.WithLabelValues("exhausted").Inc()
	return nil, errors.Wrapf(domain.ErrAllocationExhausted, "gave up after %d conflicting attempts", a.opts.MaxRetries+1)
}

// tryAllocate runs one reservation attempt. It returns the candidate it tried
// so a conflict can exclude it from the next scan.
func (a *VlanAllocator) tryAllocate(ctx context.Context, ownerUUID, name string, known map[int]struct{}) (*domain.VlanReservation, int, error) {
	uow := a.newUnitOfWork(ctx)
	defer uow.Close()

	if err := uow.BeginTransaction(ctx); err != nil {
		return nil, 0, err
	}
	if _, err := uow.Users().GetByOwnerUUID(ctx, ownerUUID); err != nil {
		return nil, 0, errors.Wrap(err, "failed to verify owner")
	}
	local, err := uow.VlanIDs().ListByOwner(ctx, ownerUUID)
	if err != nil {
		return nil, 0, err
	}
	for _, r := range local {
		known[r.VlanID] = struct{}{}
	}

	candidate, err := NextFreeVlanID(known, a.opts.MinID, a.opts.MaxID)
	if err != nil {
		return nil, 0, err
	}
	reservation, err := uow.VlanIDs().Create(ctx, ownerUUID, candidate)
	if err != nil {
		return nil, candidate, err
	}

	if name == "" {
		name = fmt.Sprintf("vlan-%d", candidate)
	}
	vlan := domain.FabricVlan{VlanID: candidate, Name: name, OwnerUUID: ownerUUID}
	if _, err := a.network.CreateVlan(ctx, vlan); err != nil {
		rollback(ctx, uow)
		return nil, candidate, errors.Wrapf(err, "failed to create vlan %d on fabric", candidate)
	}

	if err := uow.CommitTransaction(); err != nil {
		// the fabric VLAN has no reservation behind it now
		if derr := a.network.DeleteVlan(ctx, ownerUUID, candidate); derr != nil {
			log.G(ctx).WithError(derr).WithField("vlan_id", candidate).Error("failed to remove unreserved fabric vlan")
		}
		return nil, candidate, err
	}
	return reservation, candidate, nil
}

// Release deletes the fabric VLAN and then its reservation. When the fabric
// refuses, the reservation is left in place. A VLAN the fabric no longer
// knows is still released locally.
func (a *VlanAllocator) Release(ctx context.Context, ownerUUID string, vlanID int) error {
	unlock := a.locks.lock(ownerUUID)
	defer unlock()

	logger := log.G(ctx).WithFields(logrus.Fields{"owner_uuid": ownerUUID, "vlan_id": vlanID})

	remoteMissing := false
	if err := a.network.DeleteVlan(ctx, ownerUUID, vlanID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.metrics.VlanReleases.WithLabelValues("error").Inc()
			return errors.Wrapf(err, "failed to delete vlan %d on fabric", vlanID)
		}
		remoteMissing = true
		logger.Warn("vlan already absent from fabric")
	}

	uow := a.newUnitOfWork(ctx)
	defer uow.Close()
	err := withTransaction(ctx, uow, func() error {
		return uow.VlanIDs().Delete(ctx, ownerUUID, vlanID)
	})
	if errors.Is(err, domain.ErrNotFound) && !remoteMissing {
		logger.Warn("fabric vlan had no local reservation")
		err = nil
	}
	if err != nil {
		a.metrics.VlanReleases.WithLabelValues("error").Inc()
		return err
	}
	a.metrics.VlanReleases.WithLabelValues("ok").Inc()
	logger.Info("vlan released")
	return nil
}

func (a *VlanAllocator) remoteIDs(ctx context.Context, ownerUUID string) (map[int]struct{}, error) {
	vlans, err := a.network.ListVlans(ctx, ownerUUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list fabric vlans")
	}
	known := make(map[int]struct{}, len(vlans))
	for _, v := range vlans {
		known[v.VlanID] = struct{}{}
	}
	return known, nil
}

// ownerLocks serializes allocation per owner. Entries are dropped once no
// caller holds or waits on them.
type ownerLocks struct {
	mu   sync.Mutex
	held map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func (l *ownerLocks) lock(owner string) func() {
	l.mu.Lock()
	entry, ok := l.held[owner]
	if !ok {
		entry = &ownerLock{}
		l.held[owner] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.held, owner)
		}
		l.mu.Unlock()
	}
}
