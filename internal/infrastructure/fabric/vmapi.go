package fabric

import (
	"context"
	"net/http"
	"net/url"

	"github.com/zinrai/fabric-portal/internal/domain"
)

var _ domain.VMClient = (*Vmapi)(nil)

// Vmapi is the VM service client. NIC changes are submitted as VM actions and
// answered with the job that performs them.
type Vmapi struct {
	c *client
}

func NewVmapi(baseURL string, opts Options) *Vmapi {
	return &Vmapi{c: newClient("vmapi", baseURL, opts)}
}

func (v *Vmapi) ListVMs(ctx context.Context, ownerUUID string) ([]domain.VM, error) {
	var query url.Values
	if ownerUUID != "" {
		query = url.Values{"owner_uuid": {ownerUUID}}
	}
	var vms []domain.VM
	err := v.c.do(ctx, http.MethodGet, "/vms", query, nil, &vms)
	return vms, err
}

func (v *Vmapi) GetVM(ctx context.Context, uuid string) (*domain.VM, error) {
	var vm domain.VM
	if err := v.c.do(ctx, http.MethodGet, "/vms/"+url.PathEscape(uuid), nil, nil, &vm); err != nil {
		return nil, err
	}
	return &vm, nil
}

func (v *Vmapi) AddNics(ctx context.Context, vmUUID string, nics []domain.NicSpec) (*domain.JobRef, error) {
	body := struct {
		Networks []domain.NicSpec `json:"networks"`
	}{Networks: nics}
	return v.action(ctx, vmUUID, "add_nics", body)
}

func (v *Vmapi) UpdateNics(ctx context.Context, vmUUID string, nics []domain.NicUpdate) (*domain.JobRef, error) {
	body := struct {
		Nics []domain.NicUpdate `json:"nics"`
	}{Nics: nics}
	return v.action(ctx, vmUUID, "update_nics", body)
}

func (v *Vmapi) RemoveNics(ctx context.Context, vmUUID string, macs []string) (*domain.JobRef, error) {
	body := struct {
		Macs []string `json:"macs"`
	}{Macs: macs}
	return v.action(ctx, vmUUID, "remove_nics", body)
}

func (v *Vmapi) action(ctx context.Context, vmUUID, action string, body any) (*domain.JobRef, error) {
	var job domain.JobRef
	err := v.c.do(ctx, http.MethodPost, "/vms/"+url.PathEscape(vmUUID), url.Values{"action": {action}}, body, &job)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
