package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"keymart/internal/services/rbac"
)

func moduleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func ListModules(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		modules, err := svc.ListModules(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, modules)
	}
}

func GetModule(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := moduleID(w, r)
		if !ok {
			return
		}
		module, err := svc.GetModule(r.Context(), id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, module)
	}
}

type moduleReq struct {
	ModuleName  string  `json:"moduleName" validate:"required,max=80"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=300"`
}

func CreateModule(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moduleReq
		if !decodeValid(w, r, &req) {
			return
		}
		module, err := svc.CreateModule(r.Context(), req.ModuleName, req.Description)
		if err != nil {
			respondError(w, err)
			return
		}
		lg.Infow("module created", "moduleId", module.ModuleID, "name", module.ModuleName)
		respondJSON(w, http.StatusCreated, module)
	}
}

func UpdateModule(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := moduleID(w, r)
		if !ok {
			return
		}
		var req moduleReq
		if !decodeValid(w, r, &req) {
			return
		}
		if err := svc.UpdateModule(r.Context(), id, req.ModuleName, req.Description); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteModule(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := moduleID(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteModule(r.Context(), id); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
