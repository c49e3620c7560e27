package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/guard"
)

// ListUsers handles GET /users (admin only). Password hashes never leave
// the content store.
func (a *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.content.ListUsers(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	page, size := parsePage(r)
	users, meta := paginate(users, page, size)
	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, summarizeUser(u))
	}
	writeJSON(w, http.StatusOK, ListUsersResponse{Users: summaries, PaginationMeta: meta})
}

func (a *API) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateUserRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	user, err := a.content.CreateUser(r.Context(), content.UserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     content.Role(req.Role),
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditUserCreated, r, user.ID)
	writeOK(w, http.StatusCreated, a.localizer(r).T("user.created"), summarizeUser(user))
}

// UpdateUser handles PUT /users/{userID}. Demoting or disabling the last
// active admin is refused with 409.
func (a *API) UpdateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdateUserRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	upd := content.UserUpdate{
		Email:   req.Email,
		Active:  req.Active,
		Version: req.Version,
	}
	if req.Role != nil {
		role := content.Role(*req.Role)
		upd.Role = &role
	}
	user, err := a.content.UpdateUser(r.Context(), chi.URLParam(r, "userID"), upd)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditUserUpdated, r, user.ID)
	writeOK(w, http.StatusOK, a.localizer(r).T("user.updated"), summarizeUser(user))
}

func (a *API) SetUserPassword(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[SetPasswordRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	id := chi.URLParam(r, "userID")
	if err := a.content.SetPassword(r.Context(), id, req.Password); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditUserPasswordSet, r, id)
	writeOK(w, http.StatusOK, a.localizer(r).T("user.passwordChanged"), nil)
}

// DeleteUser handles DELETE /users/{userID}. Admins cannot delete
// themselves or the last active admin.
func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	p, _ := guard.PrincipalFromContext(r.Context())
	if err := a.content.DeleteUser(r.Context(), id, p.UserID); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditUserDeleted, r, id)
	writeOK(w, http.StatusOK, a.localizer(r).T("user.deleted"), nil)
}
