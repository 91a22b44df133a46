package fabric

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zinrai/fabric-portal/internal/domain"
)

var _ domain.NetworkClient = (*Napi)(nil)

// Napi is the network service client, including per-owner fabric VLANs.
type Napi struct {
	c *client
}

func NewNapi(baseURL string, opts Options) *Napi {
	return &Napi{c: newClient("napi", baseURL, opts)}
}

func (n *Napi) ListNetworks(ctx context.Context, ownerUUID string) ([]domain.Network, error) {
	var networks []domain.Network
	err := n.c.do(ctx, http.MethodGet, "/networks", url.Values{"owner_uuid": {ownerUUID}}, nil, &networks)
	return networks, err
}

func (n *Napi) ListVlans(ctx context.Context, ownerUUID string) ([]domain.FabricVlan, error) {
	var vlans []domain.FabricVlan
	err := n.c.do(ctx, http.MethodGet, vlansPath(ownerUUID), nil, nil, &vlans)
	return vlans, err
}

func (n *Napi) CreateVlan(ctx context.Context, vlan domain.FabricVlan) (*domain.FabricVlan, error) {
	var created domain.FabricVlan
	if err := n.c.do(ctx, http.MethodPost, vlansPath(vlan.OwnerUUID), nil, vlan, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (n *Napi) DeleteVlan(ctx context.Context, ownerUUID string, vlanID int) error {
	return n.c.do(ctx, http.MethodDelete, vlansPath(ownerUUID)+"/"+strconv.Itoa(vlanID), nil, nil, nil)
}

func vlansPath(ownerUUID string) string {
	return "/fabrics/" + url.PathEscape(ownerUUID) + "/vlans"
}
