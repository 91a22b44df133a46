package fabric

import (
	"context"
	"net/http"
	"net/url"

	"github.com/zinrai/fabric-portal/internal/domain"
)

var _ domain.FirewallClient = (*Fwapi)(nil)

// Fwapi is the firewall rule service client.
type Fwapi struct {
	c *client
}

func NewFwapi(baseURL string, opts Options) *Fwapi {
	return &Fwapi{c: newClient("fwapi", baseURL, opts)}
}

type rulePayload struct {
	Rule      string `json:"rule"`
	Enabled   bool   `json:"enabled"`
	OwnerUUID string `json:"owner_uuid,omitempty"`
}

func (f *Fwapi) ListRulesByOwner(ctx context.Context, ownerUUID string) ([]domain.RemoteRule, error) {
	var rules []domain.RemoteRule
	err := f.c.do(ctx, http.MethodGet, "/rules", url.Values{"owner_uuid": {ownerUUID}}, nil, &rules)
	return rules, err
}

func (f *Fwapi) ListRulesByVM(ctx context.Context, vmUUID string) ([]domain.RemoteRule, error) {
	var rules []domain.RemoteRule
	err := f.c.do(ctx, http.MethodGet, "/firewalls/vms/"+url.PathEscape(vmUUID), nil, nil, &rules)
	return rules, err
}

func (f *Fwapi) ListGlobalRules(ctx context.Context) ([]domain.RemoteRule, error) {
	var rules []domain.RemoteRule
	if err := f.c.do(ctx, http.MethodGet, "/rules", url.Values{"global": {"true"}}, nil, &rules); err != nil {
		return nil, err
	}
	for i := range rules {
		rules[i].Global = true
	}
	return rules, nil
}

func (f *Fwapi) CreateRule(ctx context.Context, rule domain.DesiredRule) (*domain.RemoteRule, error) {
	var created domain.RemoteRule
	payload := rulePayload{Rule: rule.Rule, Enabled: rule.Enabled, OwnerUUID: rule.OwnerUUID}
	if err := f.c.do(ctx, http.MethodPost, "/rules", nil, payload, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (f *Fwapi) UpdateRule(ctx context.Context, rule domain.DesiredRule) (*domain.RemoteRule, error) {
	var updated domain.RemoteRule
	payload := rulePayload{Rule: rule.Rule, Enabled: rule.Enabled, OwnerUUID: rule.OwnerUUID}
	if err := f.c.do(ctx, http.MethodPut, "/rules/"+url.PathEscape(rule.UUID), nil, payload, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (f *Fwapi) DeleteRule(ctx context.Context, uuid, ownerUUID string) error {
	var query url.Values
	if ownerUUID != "" {
		query = url.Values{"owner_uuid": {ownerUUID}}
	}
	return f.c.do(ctx, http.MethodDelete, "/rules/"+url.PathEscape(uuid), query, nil, nil)
}
