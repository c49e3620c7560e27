package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/guard"
	"github.com/jmcleod/quill/upload"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a failed ActionResult.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ActionResult{OK: false, Message: msg})
}

func writeOK(w http.ResponseWriter, status int, msg string, data any) {
	writeJSON(w, status, ActionResult{OK: true, Message: msg, Data: data})
}

// mapError translates a domain error into a localized ActionResult.
// Unexpected errors are logged and reported generically.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	l := a.localizer(r)

	var verr *content.ValidationError
	var inUse *content.CategoryInUseError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ActionResult{OK: false, Message: l.T(verr.Key), Field: verr.Field})
	case errors.As(err, &inUse):
		writeError(w, http.StatusConflict, l.TWithParams("category.inUse", map[string]string{"count": strconv.Itoa(inUse.Projects)}))
	case errors.Is(err, content.ErrCategoryNotFound):
		writeJSON(w, http.StatusBadRequest, ActionResult{OK: false, Message: l.T("project.categoryNotFound"), Field: "category_id"})
	case errors.Is(err, content.ErrNotFound):
		writeError(w, http.StatusNotFound, l.T("error.notFound"))
	case errors.Is(err, content.ErrConflict):
		writeError(w, http.StatusConflict, l.T("error.conflict"))
	case errors.Is(err, content.ErrUsernameTaken):
		writeJSON(w, http.StatusConflict, ActionResult{OK: false, Message: l.T("user.usernameTaken"), Field: "username"})
	case errors.Is(err, content.ErrEmailTaken):
		writeJSON(w, http.StatusConflict, ActionResult{OK: false, Message: l.T("user.emailTaken"), Field: "email"})
	case errors.Is(err, content.ErrLastAdmin):
		writeError(w, http.StatusConflict, l.T("user.lastAdmin"))
	case errors.Is(err, content.ErrSelfDelete):
		writeError(w, http.StatusBadRequest, l.T("user.selfDelete"))
	case errors.Is(err, content.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, l.T("auth.invalidCredentials"))
	case errors.Is(err, content.ErrUserInactive):
		writeError(w, http.StatusForbidden, l.T("auth.inactive"))
	case errors.Is(err, guard.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, l.T("auth.notAuthenticated"))
	case errors.Is(err, guard.ErrCSRF):
		writeError(w, http.StatusForbidden, l.T("auth.csrfInvalid"))
	case errors.Is(err, guard.ErrForbidden):
		writeError(w, http.StatusForbidden, l.T("auth.forbidden"))
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, l.T("upload.tooLarge"))
	case errors.Is(err, upload.ErrTypeNotAllowed), errors.Is(err, upload.ErrEmptyFile):
		writeError(w, http.StatusUnsupportedMediaType, l.T("upload.unsupportedType"))
	default:
		a.writeInternalError(w, r, "request failed", err)
	}
}

func (a *API) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, a.localizer(r).T("error.internal"))
}

// rejectAction is the guard's error handler: rejected actions are audited
// and answered with a localized message that carries no token detail.
func (a *API) rejectAction(w http.ResponseWriter, r *http.Request, err error) {
	a.audit.logFailure(AuditActionRejected, r, err.Error(), slog.String("path", r.URL.Path))
	a.mapError(w, r, err)
}
