package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"keymart/internal/services/rbac"
)

func ListAuditLogs(svc *rbac.Service, lg *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		logs, err := svc.ListAuditLogs(r.Context(), limit)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, logs)
	}
}
