package domain

// DesiredRule is a firewall rule as supplied by the caller. An empty UUID marks
// a rule that does not exist on the fabric yet.
type DesiredRule struct {
	Rule      string `json:"rule"`
	Enabled   bool   `json:"enabled"`
	UUID      string `json:"uuid"`
	OwnerUUID string `json:"owner_uuid"`
}

// RemoteRule is a firewall rule as stored by the fabric.
type RemoteRule struct {
	UUID      string `json:"uuid"`
	Rule      string `json:"rule"`
	Enabled   bool   `json:"enabled"`
	OwnerUUID string `json:"owner_uuid,omitempty"`
	Global    bool   `json:"global,omitempty"`
}

// DesiredNic is a NIC as supplied by the caller. An empty MAC marks a NIC to add.
type DesiredNic struct {
	NetworkUUID string `json:"network_uuid"`
	Primary     bool   `json:"primary"`
	MAC         string `json:"mac"`
}

// RemoteNic is a NIC currently attached to a VM.
type RemoteNic struct {
	MAC         string `json:"mac"`
	NetworkUUID string `json:"network_uuid"`
	Primary     bool   `json:"primary,omitempty"`
	IP          string `json:"ip,omitempty"`
	VlanID      int    `json:"vlan_id,omitempty"`
}

// NicSpec describes a NIC to attach.
type NicSpec struct {
	NetworkUUID string `json:"uuid"`
	Primary     bool   `json:"primary,omitempty"`
}

// NicUpdate changes the mutable fields of an attached NIC.
type NicUpdate struct {
	MAC     string `json:"mac"`
	Primary bool   `json:"primary"`
}

type FabricVlan struct {
	VlanID      int    `json:"vlan_id"`
	Name        string `json:"name"`
	OwnerUUID   string `json:"owner_uuid"`
	Description string `json:"description,omitempty"`
}

type VM struct {
	UUID      string      `json:"uuid"`
	Alias     string      `json:"alias"`
	OwnerUUID string      `json:"owner_uuid"`
	State     string      `json:"state"`
	Brand     string      `json:"brand,omitempty"`
	RAM       int         `json:"ram,omitempty"`
	Nics      []RemoteNic `json:"nics"`
}

type Network struct {
	UUID      string   `json:"uuid"`
	Name      string   `json:"name"`
	VlanID    int      `json:"vlan_id"`
	Subnet    string   `json:"subnet,omitempty"`
	Gateway   string   `json:"gateway,omitempty"`
	Fabric    bool     `json:"fabric,omitempty"`
	OwnerUUID []string `json:"owner_uuids,omitempty"`
}

type Image struct {
	UUID    string `json:"uuid"`
	Name    string `json:"name"`
	Version string `json:"version"`
	OS      string `json:"os"`
	Type    string `json:"type"`
	State   string `json:"state"`
}

type Package struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Memory int    `json:"max_physical_memory"`
	Disk   int    `json:"quota"`
	CPUCap int    `json:"cpu_cap,omitempty"`
	Active bool   `json:"active"`
}

// JobRef points at an asynchronous fabric job.
type JobRef struct {
	JobUUID string `json:"job_uuid"`
	VMUUID  string `json:"vm_uuid,omitempty"`
}
