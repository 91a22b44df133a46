package domain

import "context"

// FirewallClient talks to the fabric firewall service.
type FirewallClient interface {
	ListRulesByOwner(ctx context.Context, ownerUUID string) ([]RemoteRule, error)
	ListRulesByVM(ctx context.Context, vmUUID string) ([]RemoteRule, error)
	ListGlobalRules(ctx context.Context) ([]RemoteRule, error)
	CreateRule(ctx context.Context, rule DesiredRule) (*RemoteRule, error)
	UpdateRule(ctx context.Context, rule DesiredRule) (*RemoteRule, error)
	DeleteRule(ctx context.Context, uuid, ownerUUID string) error
}

// VMClient talks to the fabric VM service. NIC mutations are asynchronous on
// the fabric and return the job that carries them out.
type VMClient interface {
	ListVMs(ctx context.Context, ownerUUID string) ([]VM, error)
	GetVM(ctx context.Context, uuid string) (*VM, error)
	AddNics(ctx context.Context, vmUUID string, nics []NicSpec) (*JobRef, error)
	UpdateNics(ctx context.Context, vmUUID string, nics []NicUpdate) (*JobRef, error)
	RemoveNics(ctx context.Context, vmUUID string, macs []string) (*JobRef, error)
}

// NetworkClient talks to the fabric network service.
type NetworkClient interface {
	ListNetworks(ctx context.Context, ownerUUID string) ([]Network, error)
	ListVlans(ctx context.Context, ownerUUID string) ([]FabricVlan, error)
	CreateVlan(ctx context.Context, vlan FabricVlan) (*FabricVlan, error)
	DeleteVlan(ctx context.Context, ownerUUID string, vlanID int) error
}

type ImageClient interface {
	ListImages(ctx context.Context) ([]Image, error)
	GetImage(ctx context.Context, uuid string) (*Image, error)
}

type PackageClient interface {
	ListPackages(ctx context.Context) ([]Package, error)
	GetPackage(ctx context.Context, uuid string) (*Package, error)
}

// JobWaiter blocks until a fabric job finishes.
type JobWaiter interface {
	WaitJob(ctx context.Context, jobUUID string) error
}
