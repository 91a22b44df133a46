package api

import (
	"net/http"

	"github.com/zinrai/fabric-portal/internal/domain"
	"github.com/zinrai/fabric-portal/internal/usecase"
)

type UserHandler struct {
	useCase *usecase.AccountUseCase
}

func NewUserHandler(useCase *usecase.AccountUseCase) *UserHandler {
	return &UserHandler{useCase: useCase}
}

func (h *UserHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.useCase.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	respond(w, http.StatusOK, "", users)
}

func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	var request usecase.NewUser
	if err := decode(r, &request); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := h.useCase.CreateUser(r.Context(), request)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "user created", user)
}

func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	user, err := h.useCase.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "", user)
}

func (h *UserHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var request usecase.UserChanges
	if err := decode(r, &request); err != nil {
		respondError(w, r, err)
		return
	}
	user, err := h.useCase.UpdateUser(r.Context(), id, request)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "user updated", user)
}

func (h *UserHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var request struct {
		Password string `json:"password"`
	}
	if err := decode(r, &request); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.useCase.ChangePassword(r.Context(), id, request.Password); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "password changed", nil)
}

func (h *UserHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.useCase.DeleteUser(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "user deleted", nil)
}

func (h *UserHandler) listSSHKeys(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	keys, err := h.useCase.ListSSHKeys(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if keys == nil {
		keys = []*domain.SSHKey{}
	}
	respond(w, http.StatusOK, "", keys)
}

func (h *UserHandler) addSSHKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var request struct {
		Key         string `json:"key"`
		Description string `json:"description"`
	}
	if err := decode(r, &request); err != nil {
		respondError(w, r, err)
		return
	}
	key, err := h.useCase.AddSSHKey(r.Context(), id, request.Key, request.Description)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, "ssh key added", key)
}

func (h *UserHandler) deleteSSHKey(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	keyID, err := pathUUID(r, "key_id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.useCase.DeleteSSHKey(r.Context(), id, keyID); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, "ssh key deleted", nil)
}
