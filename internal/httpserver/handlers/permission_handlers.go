package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"keymart/internal/services/rbac"
)

func ListPermissions(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		permissions, err := svc.ListPermissions(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, permissions)
	}
}

func GetPermission(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := moduleID(w, r)
		if !ok {
			return
		}
		permission, err := svc.GetPermission(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, permission)
	}
}

type permissionReq struct {
	PermissionName string  `json:"permissionName" validate:"required,max=80"`
	Description    *string `json:"description,omitempty" validate:"omitempty,max=300"`
}

func CreatePermission(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req permissionReq
		if !decodeValid(w, r, &req) {
			return
		}
		permission, err := svc.CreatePermission(r.Context(), req.PermissionName, req.Description)
		if err != nil {
			respondError(w, err)
			return
		}
		lg.Infow("permission created", "permissionId", permission.PermissionID, "name", permission.Name)
		respondJSON(w, http.StatusCreated, permission)
	}
}

func UpdatePermission(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := moduleID(w, r)
		if !ok {
			return
		}
		var req permissionReq
		if !decodeValid(w, r, &req) {
			return
		}
		if err := svc.UpdatePermission(r.Context(), id, req.PermissionName, req.Description); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeletePermission(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := moduleID(w, r)
		if !ok {
			return
		}
		if err := svc.DeletePermission(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
