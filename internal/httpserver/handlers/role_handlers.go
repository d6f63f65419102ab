package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"keymart/internal/services/rbac"
)

// ListRoles is the storefront-facing listing; system roles stay hidden.
func ListRoles(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs, err := svc.ListPublicRoles(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, refs)
	}
}

func ListAllRoles(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := svc.ListRoles(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, roles)
	}
}

func ListActiveRoles(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles, err := svc.ListActiveRoles(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, roles)
	}
}

func GetRole(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.GetRole(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, detail)
	}
}

type createRoleReq struct {
	Name     string `json:"name" validate:"required,max=80"`
	IsSystem bool   `json:"isSystem"`
}

func CreateRole(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRoleReq
		if !decodeValid(w, r, &req) {
			return
		}
		role, err := svc.CreateRole(r.Context(), req.Name, req.IsSystem)
		if err != nil {
			respondError(w, err)
			return
		}
		lg.Infow("role created", "roleId", role.RoleID, "name", role.Name)
		respondJSON(w, http.StatusCreated, role)
	}
}

type updateRoleReq struct {
	Name     string `json:"name" validate:"required,max=80"`
	IsActive bool   `json:"isActive"`
}

func UpdateRole(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateRoleReq
		if !decodeValid(w, r, &req) {
			return
		}
		if err := svc.UpdateRole(r.Context(), chi.URLParam(r, "id"), req.Name, req.IsActive); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteRole(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteRole(r.Context(), chi.URLParam(r, "id")); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetRolePermissions(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matrix, err := svc.GetRoleMatrix(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, matrix)
	}
}

func UpdateRolePermissions(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rbac.MatrixUpdate
		if !decodeValid(w, r, &req) {
			return
		}
		matrix, err := svc.UpdateRoleMatrix(r.Context(), chi.URLParam(r, "id"), req)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, matrix)
	}
}
