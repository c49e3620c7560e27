package api

import (
	"net/http"
	"strconv"
)

const defaultAuditListLimit = 100

// DashboardStats handles GET /dashboard/stats.
func (a *API) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.content.Stats(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ListAudit handles GET /audit (admin only). Without a configured audit
// store the list is empty.
func (a *API) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditListLimit
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	resp := ListAuditResponse{Entries: []AuditEntry{}}
	if a.audit.store != nil {
		entries, err := a.audit.store.list(r.Context(), limit)
		if err != nil {
			a.writeInternalError(w, r, "listing audit entries", err)
			return
		}
		resp.Entries = entries
	}
	writeJSON(w, http.StatusOK, resp)
}
