package usecase

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
	"github.com/zinrai/fabric-portal/internal/metrics"
)

// NicChangeSet is the mutation set that brings a VM's NICs in line with a
// desired list. It is applied in field order: Delete, Add, Update.
type NicChangeSet struct {
	Delete []string           `json:"delete"`
	Add    []domain.NicSpec   `json:"add"`
	Update []domain.NicUpdate `json:"update"`
}

func (c *NicChangeSet) Empty() bool {
	return len(c.Delete) == 0 && len(c.Add) == 0 && len(c.Update) == 0
}

// DiffNics classifies desired against current.
//
// A desired NIC without a MAC is added. A current NIC whose MAC is not
// desired is deleted. A NIC's network binding cannot change in place, so a
// matching MAC on a different network is deleted and re-added on the desired
// network. A matching MAC differing only in primary is updated. Only primary
// is treated as mutable.
func DiffNics(desired []domain.DesiredNic, current []domain.RemoteNic) (*NicChangeSet, error) {
	attached := make(map[string]domain.RemoteNic, len(current))
	for _, nic := range current {
		attached[normalizeMAC(nic.MAC)] = nic
	}

	wanted := make(map[string]domain.DesiredNic, len(desired))
	for _, nic := range desired {
		if nic.MAC == "" {
			continue
		}
		mac := normalizeMAC(nic.MAC)
		if _, dup := wanted[mac]; dup {
			return nil, &domain.ValidationError{Field: "mac", Message: fmt.Sprintf("nic %s appears more than once", nic.MAC)}
		}
		if _, ok := attached[mac]; !ok {
			return nil, &domain.ValidationError{Field: "mac", Message: fmt.Sprintf("nic %s is not attached to this vm", nic.MAC)}
		}
		wanted[mac] = nic
	}

	changes := &NicChangeSet{}
	for _, nic := range current {
		want, ok := wanted[normalizeMAC(nic.MAC)]
		if !ok || !strings.EqualFold(want.NetworkUUID, nic.NetworkUUID) {
			changes.Delete = append(changes.Delete, nic.MAC)
		}
	}
	for _, nic := range desired {
		if nic.MAC == "" {
			changes.Add = append(changes.Add, domain.NicSpec{NetworkUUID: nic.NetworkUUID, Primary: nic.Primary})
			continue
		}
		have := attached[normalizeMAC(nic.MAC)]
		switch {
		case !strings.EqualFold(nic.NetworkUUID, have.NetworkUUID):
			changes.Add = append(changes.Add, domain.NicSpec{NetworkUUID: nic.NetworkUUID, Primary: nic.Primary})
		case nic.Primary != have.Primary:
			changes.Update = append(changes.Update, domain.NicUpdate{MAC: have.MAC, Primary: nic.Primary})
		}
	}
	return changes, nil
}

func normalizeMAC(mac string) string {
	if hw, err := net.ParseMAC(strings.TrimSpace(mac)); err == nil {
		return hw.String()
	}
	return strings.ToLower(strings.TrimSpace(mac))
}

type NicUseCase struct {
	vms     domain.VMClient
	jobs    domain.JobWaiter
	metrics *metrics.Registry
}

// NewNicUseCase returns the VM use case. jobs may be nil, in which case NIC
// phases do not wait for the fabric jobs they start.
func NewNicUseCase(vms domain.VMClient, jobs domain.JobWaiter, m *metrics.Registry) *NicUseCase {
	if m == nil {
		m = metrics.Nop()
	}
	return &NicUseCase{vms: vms, jobs: jobs, metrics: m}
}

func (uc *NicUseCase) ListVMs(ctx context.Context, ownerUUID string) ([]domain.VM, error) {
	return uc.vms.ListVMs(ctx, ownerUUID)
}

func (uc *NicUseCase) GetVM(ctx context.Context, uuid string) (*domain.VM, error) {
	return uc.vms.GetVM(ctx, uuid)
}

type nicPhase struct {
	name    string
	pending int
	run     func(ctx context.Context) (*domain.JobRef, error)
}

// ReconcileNics brings the VM's NICs in line with desired. Phases run strictly
// in the order delete, add, update, each as a single batched call, and each
// waits for its fabric job before the next starts. The first failure stops
// the remaining phases; earlier phases are not undone.
func (uc *NicUseCase) ReconcileNics(ctx context.Context, vmUUID string, desired []domain.DesiredNic) (*NicChangeSet, error) {
	defer uc.metrics.ObserveReconcile("nic", time.Now())
	logger := log.G(ctx).WithField("vm_uuid", vmUUID)

	vm, err := uc.vms.GetVM(ctx, vmUUID)
	if err != nil {
		uc.metrics.ReconcileFailures.WithLabelValues("nic", "fetch").Inc()
		return nil, errors.Wrap(err, "failed to fetch vm")
	}
	changes, err := DiffNics(desired, vm.Nics)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"delete": len(changes.Delete),
		"add":    len(changes.Add),
		"update": len(changes.Update),
	}).Info("reconciling nics")

	phases := []nicPhase{
		{"delete", len(changes.Delete), func(ctx context.Context) (*domain.JobRef, error) {
			return uc.vms.RemoveNics(ctx, vmUUID, changes.Delete)
		}},
		{"add", len(changes.Add), func(ctx context.Context) (*domain.JobRef, error) {
			return uc.vms.AddNics(ctx, vmUUID, changes.Add)
		}},
		{"update", len(changes.Update), func(ctx context.Context) (*domain.JobRef, error) {
			return uc.vms.UpdateNics(ctx, vmUUID, changes.Update)
		}},
	}

	var completed []string
	for _, phase := range phases {
		if phase.pending == 0 {
			continue
		}
		if err := uc.runPhase(ctx, phase); err != nil {
			uc.metrics.ReconcileFailures.WithLabelValues("nic", phase.name).Inc()
			logger.WithError(err).WithField("phase", phase.name).Error("nic reconciliation failed")
			if len(completed) > 0 {
				return changes, &domain.PartialApplicationError{Phase: phase.name, Completed: completed, Err: err}
			}
			return nil, errors.Wrapf(err, "failed to %s nics", phase.name)
		}
		completed = append(completed, phase.name)
		uc.metrics.ReconcileOperations.WithLabelValues("nic", phase.name).Add(float64(phase.pending))
	}
	return changes, nil
}

func (uc *NicUseCase) runPhase(ctx context.Context, phase nicPhase) error {
	job, err := phase.run(ctx)
	if err != nil {
		return err
	}
	if uc.jobs == nil || job == nil || job.JobUUID == "" {
		return nil
	}
	log.G(ctx).WithFields(logrus.Fields{"phase": phase.name, "job_uuid": job.JobUUID}).Debug("waiting for nic job")
	return uc.jobs.WaitJob(ctx, job.JobUUID)
}
