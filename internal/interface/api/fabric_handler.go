package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/usecase"
)

// FabricHandler serves the routes backed by the virtualization fabric.
type FabricHandler struct {
	firewall *usecase.FirewallUseCase
	nics     *usecase.NicUseCase
	vlans    *usecase.VlanAllocator
	catalog  *usecase.CatalogUseCase
}

func NewFabricHandler(firewall *usecase.FirewallUseCase, nics *usecase.NicUseCase, vlans *usecase.VlanAllocator, catalog *usecase.CatalogUseCase) *FabricHandler {
	return &FabricHandler{firewall: firewall, nics: nics, vlans: vlans, catalog: catalog}
}

func (h *FabricHandler) listRules(w http.ResponseWriter, r *http.Request) {
	vmUUID, err := pathUUID(r, "uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	rules, err := h.firewall.ListRules(r.Context(), vmUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", rules)
}

func (h *FabricHandler) reconcileRules(w http.ResponseWriter, r *http.Request) {
	ownerUUID, err := pathUUID(r, "owner_uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var request struct {
		Rules []domain.DesiredRule `json:"firewallRules"`
	}
	if err := decode(r, &request); err != nil {
		respondError(w, r, err)
		return
	}
	result, err := h.firewall.ReconcileRules(r.Context(), ownerUUID, request.Rules)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "firewall rules updated", result)
}

func (h *FabricHandler) listVMs(w http.ResponseWriter, r *http.Request) {
	// owner_uuid is optional, without it every VM is listed
	ownerUUID := r.URL.Query().Get("owner_uuid")
	if ownerUUID != "" {
		id, err := uuid.Parse(ownerUUID)
		if err != nil {
			respondError(w, r, &domain.ValidationError{Field: "owner_uuid", Message: "must be a uuid"})
			return
		}
		ownerUUID = id.String()
	}
	vms, err := h.nics.ListVMs(r.Context(), ownerUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", vms)
}

func (h *FabricHandler) getVM(w http.ResponseWriter, r *http.Request) {
	vmUUID, err := pathUUID(r, "uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	vm, err := h.nics.GetVM(r.Context(), vmUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", vm)
}

func (h *FabricHandler) reconcileNics(w http.ResponseWriter, r *http.Request) {
	vmUUID, err := pathUUID(r, "uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var request struct {
		Nics []domain.DesiredNic `json:"nics"`
	}
	if err := decode(r, &request); err != nil {
		respondError(w, r, err)
		return
	}
	changes, err := h.nics.ReconcileNics(r.Context(), vmUUID, request.Nics)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "nics updated", changes)
}

func (h *FabricHandler) listNetworks(w http.ResponseWriter, r *http.Request) {
	ownerUUID, err := pathUUID(r, "owner_uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	networks, err := h.catalog.ListNetworks(r.Context(), ownerUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", networks)
}

func (h *FabricHandler) listVlans(w http.ResponseWriter, r *http.Request) {
	ownerUUID, err := pathUUID(r, "owner_uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	ids, err := h.vlans.Reserved(r.Context(), ownerUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", ids)
}

func (h *FabricHandler) allocateVlan(w http.ResponseWriter, r *http.Request) {
	ownerUUID, err := pathUUID(r, "owner_uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var request struct {
		Name string `json:"name"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &request); err != nil {
			respondError(w, r, err)
			return
		}
	}
	reservation, err := h.vlans.Allocate(r.Context(), ownerUUID, request.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "vlan allocated", reservation)
}

func (h *FabricHandler) releaseVlan(w http.ResponseWriter, r *http.Request) {
	ownerUUID, err := pathUUID(r, "owner_uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	vlanID, err := strconv.Atoi(r.PathValue("vlan_id"))
	if err != nil || vlanID < usecase.DefaultMinVlanID || vlanID > usecase.DefaultMaxVlanID {
		respondError(w, r, &domain.ValidationError{Field: "vlan_id", Message: "must be an integer between 2 and 4094"})
		return
	}
	if err := h.vlans.Release(r.Context(), ownerUUID, vlanID); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "vlan released", nil)
}

func (h *FabricHandler) listImages(w http.ResponseWriter, r *http.Request) {
	images, err := h.catalog.ListImages(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", images)
}

func (h *FabricHandler) getImage(w http.ResponseWriter, r *http.Request) {
	imageUUID, err := pathUUID(r, "uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	image, err := h.catalog.GetImage(r.Context(), imageUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", image)
}

func (h *FabricHandler) listPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalog.ListPackages(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", packages)
}

func (h *FabricHandler) getPackage(w http.ResponseWriter, r *http.Request) {
	packageUUID, err := pathUUID(r, "uuid")
	if err != nil {
		respondError(w, r, err)
		return
	}
	pkg, err := h.catalog.GetPackage(r.Context(), packageUUID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", pkg)
}
