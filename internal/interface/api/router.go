package api

import (
	"net/http"
)

// NewRouter wires the portal routes under /api. metrics may be nil.
func NewRouter(fabric *FabricHandler, users *UserHandler, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/triton/firewall/{uuid}", fabric.listRules)
	mux.HandleFunc("POST /api/triton/firewall/{owner_uuid}", fabric.reconcileRules)
	mux.HandleFunc("GET /api/triton/vms", fabric.listVMs)
	mux.HandleFunc("GET /api/triton/vms/{uuid}", fabric.getVM)
	mux.HandleFunc("PUT /api/triton/vms/{uuid}/nics", fabric.reconcileNics)
	mux.HandleFunc("GET /api/triton/networks/{owner_uuid}", fabric.listNetworks)
	mux.HandleFunc("GET /api/triton/vlans/{owner_uuid}", fabric.listVlans)
	mux.HandleFunc("POST /api/triton/vlans/{owner_uuid}", fabric.allocateVlan)
	mux.HandleFunc("DELETE /api/triton/vlans/{owner_uuid}/{vlan_id}", fabric.releaseVlan)
	mux.HandleFunc("GET /api/triton/images", fabric.listImages)
	mux.HandleFunc("GET /api/triton/images/{uuid}", fabric.getImage)
	mux.HandleFunc("GET /api/triton/packages", fabric.listPackages)
	mux.HandleFunc("GET /api/triton/packages/{uuid}", fabric.getPackage)

	mux.HandleFunc("GET /api/users", users.listUsers)
	mux.HandleFunc("POST /api/users", users.createUser)
	mux.HandleFunc("GET /api/users/{id}", users.getUser)
	mux.HandleFunc("PUT /api/users/{id}", users.updateUser)
	mux.HandleFunc("DELETE /api/users/{id}", users.deleteUser)
	mux.HandleFunc("PUT /api/users/{id}/password", users.changePassword)
	mux.HandleFunc("GET /api/users/{id}/sshkeys", users.listSSHKeys)
	mux.HandleFunc("POST /api/users/{id}/sshkeys", users.addSSHKey)
	mux.HandleFunc("DELETE /api/users/{id}/sshkeys/{key_id}", users.deleteSSHKey)

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	return withRequestLogging(withRecovery(mux))
}
