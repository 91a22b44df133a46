package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/log"
	"github.com/zinrai/fabric-portal/internal/metrics"
)

// RuleChangeSet is the mutation set that brings an owner's fabric rules in
// line with a desired list.
type RuleChangeSet struct {
	Create []domain.DesiredRule
	Update []domain.DesiredRule
	Delete []domain.RemoteRule
}

func (c *RuleChangeSet) Empty() bool {
	return len(c.Create) == 0 && len(c.Update) == 0 && len(c.Delete) == 0
}

// DiffRules classifies desired against current. A desired rule whose UUID is
// unknown to the fabric, including an empty one, is created. A current rule
// missing from desired is deleted. A current rule present in desired with a
// different rule text or enabled flag is updated. Malformed or repeated
// desired UUIDs are rejected.
func DiffRules(desired []domain.DesiredRule, current []domain.RemoteRule) (*RuleChangeSet, error) {
	wanted := make(map[string]domain.DesiredRule, len(desired))
	for _, rule := range desired {
		if err := validateRuleIDs(rule); err != nil {
			return nil, err
		}
		if rule.UUID == "" {
			continue
		}
		if _, dup := wanted[rule.UUID]; dup {
			return nil, &domain.ValidationError{
				Field:   "uuid",
				Message: fmt.Sprintf("rule %s appears more than once", rule.UUID),
			}
		}
		wanted[rule.UUID] = rule
	}

	existing := make(map[string]struct{}, len(current))
	for _, rule := range current {
		existing[rule.UUID] = struct{}{}
	}

	changes := &RuleChangeSet{}
	for _, rule := range desired {
		if _, ok := existing[rule.UUID]; !ok {
			changes.Create = append(changes.Create, rule)
		}
	}
	for _, rule := range current {
		want, ok := wanted[rule.UUID]
		if !ok {
			changes.Delete = append(changes.Delete, rule)
			continue
		}
		if want.Rule != rule.Rule || want.Enabled != rule.Enabled {
			if want.OwnerUUID == "" {
				want.OwnerUUID = rule.OwnerUUID
			}
			changes.Update = append(changes.Update, want)
		}
	}
	return changes, nil
}

// validateRuleIDs accepts an empty uuid or owner_uuid, anything else must
// parse as a UUID.
func validateRuleIDs(rule domain.DesiredRule) error {
	for _, id := range []struct{ field, value string }{
		{"uuid", rule.UUID},
		{"owner_uuid", rule.OwnerUUID},
	} {
		if id.value == "" {
			continue
		}
		if _, err := uuid.Parse(id.value); err != nil {
			return &domain.ValidationError{Field: id.field, Message: fmt.Sprintf("%q is not a valid uuid", id.value)}
		}
	}
	return nil
}

// RuleReconcileResult reports what a reconciliation changed on the fabric.
type RuleReconcileResult struct {
	Created []domain.RemoteRule `json:"created"`
	Updated []domain.RemoteRule `json:"updated"`
	Deleted []string            `json:"deleted"`
}

type FirewallUseCase struct {
	client      domain.FirewallClient
	concurrency int
	metrics     *metrics.Registry
}

// NewFirewallUseCase returns the firewall use case. concurrency bounds the
// number of rule mutations in flight.
func NewFirewallUseCase(client domain.FirewallClient, concurrency int, m *metrics.Registry) *FirewallUseCase {
	if concurrency <= 0 {
		concurrency = 1
	}
	if m == nil {
		m = metrics.Nop()
	}
	return &FirewallUseCase{client: client, concurrency: concurrency, metrics: m}
}

// ListRules returns the rules applying to a VM followed by the global rules.
func (uc *FirewallUseCase) ListRules(ctx context.Context, vmUUID string) ([]domain.RemoteRule, error) {
	rules, err := uc.client.ListRulesByVM(ctx, vmUUID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vm rules")
	}
	global, err := uc.client.ListGlobalRules(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list global rules")
	}
	return append(rules, global...), nil
}

type ruleOpError struct {
	op   string
	uuid string
	err  error
}

func (e *ruleOpError) Error() string { return fmt.Sprintf("%s rule %s: %v", e.op, e.uuid, e.err) }
func (e *ruleOpError) Unwrap() error { return e.err }

// ReconcileRules brings the owner's rules in line with desired. Current rules
// are fetched on every call. All mutations are issued concurrently and the
// first failure cancels those not yet sent; mutations already applied are
// reported in a PartialApplicationError.
func (uc *FirewallUseCase) ReconcileRules(ctx context.Context, ownerUUID string, desired []domain.DesiredRule) (*RuleReconcileResult, error) {
	defer uc.metrics.ObserveReconcile("rule", time.Now())
	logger := log.G(ctx).WithField("owner_uuid", ownerUUID)

	current, err := uc.client.ListRulesByOwner(ctx, ownerUUID)
	if err != nil {
		uc.metrics.ReconcileFailures.WithLabelValues("rule", "fetch").Inc()
		return nil, errors.Wrap(err, "failed to fetch current rules")
	}
	changes, err := DiffRules(desired, current)
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{
		"create": len(changes.Create),
		"update": len(changes.Update),
		"delete": len(changes.Delete),
	}).Info("reconciling firewall rules")

	result := &RuleReconcileResult{}
	var (
		mu        sync.Mutex
		completed []string
	)
	record := func(op, uuid string, apply func()) {
		mu.Lock()
		defer mu.Unlock()
		apply()
		completed = append(completed, op+" "+uuid)
		uc.metrics.ReconcileOperations.WithLabelValues("rule", op).Inc()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)

	for _, rule := range changes.Create {
		if rule.OwnerUUID == "" {
			rule.OwnerUUID = ownerUUID
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			created, err := uc.client.CreateRule(gctx, rule)
			if err != nil {
				return &ruleOpError{op: "create", uuid: rule.UUID, err: err}
			}
			record("create", created.UUID, func() { result.Created = append(result.Created, *created) })
			return nil
		})
	}
	for _, rule := range changes.Delete {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := uc.client.DeleteRule(gctx, rule.UUID, rule.OwnerUUID); err != nil {
				return &ruleOpError{op: "delete", uuid: rule.UUID, err: err}
			}
			record("delete", rule.UUID, func() { result.Deleted = append(result.Deleted, rule.UUID) })
			return nil
		})
	}
	for _, rule := range changes.Update {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			updated, err := uc.client.UpdateRule(gctx, rule)
			if err != nil {
				return &ruleOpError{op: "update", uuid: rule.UUID, err: err}
			}
			record("update", rule.UUID, func() { result.Updated = append(result.Updated, *updated) })
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		phase := "apply"
		var opErr *ruleOpError
		if errors.As(err, &opErr) {
			phase = opErr.op
		}
		uc.metrics.ReconcileFailures.WithLabelValues("rule", phase).Inc()
		logger.WithError(err).Error("firewall rule reconciliation failed")
		if len(completed) > 0 {
			return result, &domain.PartialApplicationError{Phase: phase, Completed: completed, Err: err}
		}
		return nil, err
	}
	return result, nil
}
