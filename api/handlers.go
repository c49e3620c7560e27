package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/guard"
	"github.com/jmcleod/quill/render"
)

// auditMutation records a content change made by the request's principal.
func (a *API) auditMutation(event AuditEvent, r *http.Request, target string) {
	p, _ := guard.PrincipalFromContext(r.Context())
	a.audit.logEvent(event, r, p.UserID,
		slog.String("actor", p.Username),
		slog.String("target", target),
	)
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

// ---------------------------------------------------------------------------
// Posts
// ---------------------------------------------------------------------------

// ListPosts handles GET /posts. Featured posts come first. The q, tag and
// featured parameters narrow the list before it is paged.
func (a *API) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	posts, err := a.content.ListPosts(r.Context(), content.PostFilter{
		Query:        q.Get("q"),
		Tag:          q.Get("tag"),
		FeaturedOnly: queryBool(r, "featured"),
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	page, size := parsePage(r)
	posts, meta := paginate(posts, page, size)
	writeJSON(w, http.StatusOK, ListPostsResponse{Posts: posts, PaginationMeta: meta})
}

// GetPost handles GET /posts/{postID} and includes the rendered content.
func (a *API) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := a.content.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	html, err := render.Markdown(post.Content)
	if err != nil {
		a.writeInternalError(w, r, "rendering post", err)
		return
	}
	writeJSON(w, http.StatusOK, PostDetail{Post: post, HTML: html})
}

func (a *API) CreatePost(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[PostRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	post, err := a.content.CreatePost(r.Context(), req.input())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditPostCreated, r, post.ID)
	writeOK(w, http.StatusCreated, a.localizer(r).T("post.created"), post)
}

func (a *API) UpdatePost(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[PostRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	post, err := a.content.UpdatePost(r.Context(), chi.URLParam(r, "postID"), req.input())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditPostUpdated, r, post.ID)
	writeOK(w, http.StatusOK, a.localizer(r).T("post.updated"), post)
}

func (a *API) DeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "postID")
	if err := a.content.DeletePost(r.Context(), id); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditPostDeleted, r, id)
	writeOK(w, http.StatusOK, a.localizer(r).T("post.deleted"), nil)
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// ListProjects handles GET /projects with optional category and featured
// filters.
func (a *API) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.content.ListProjects(r.Context(), content.ProjectFilter{
		CategoryID:   r.URL.Query().Get("category"),
		FeaturedOnly: queryBool(r, "featured"),
	})
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	page, size := parsePage(r)
	projects, meta := paginate(projects, page, size)
	writeJSON(w, http.StatusOK, ListProjectsResponse{Projects: projects, PaginationMeta: meta})
}

func (a *API) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := a.content.GetProject(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

func (a *API) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ProjectRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	project, err := a.content.CreateProject(r.Context(), req.input())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditProjectCreated, r, project.ID)
	writeOK(w, http.StatusCreated, a.localizer(r).T("project.created"), project)
}

func (a *API) UpdateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[ProjectRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	project, err := a.content.UpdateProject(r.Context(), chi.URLParam(r, "projectID"), req.input())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditProjectUpdated, r, project.ID)
	writeOK(w, http.StatusOK, a.localizer(r).T("project.updated"), project)
}

func (a *API) DeleteProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")
	if err := a.content.DeleteProject(r.Context(), id); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditProjectDeleted, r, id)
	writeOK(w, http.StatusOK, a.localizer(r).T("project.deleted"), nil)
}

// ---------------------------------------------------------------------------
// Categories
// ---------------------------------------------------------------------------

func (a *API) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.content.ListCategories(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListCategoriesResponse{Categories: categories})
}

// ListCategoryProjects handles GET /categories/projects, the grouped
// listing behind the public projects page.
func (a *API) ListCategoryProjects(w http.ResponseWriter, r *http.Request) {
	groups, err := a.content.CategoriesWithProjects(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CategoryProjectsResponse{Categories: groups})
}

func (a *API) CreateCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CategoryRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	category, err := a.content.CreateCategory(r.Context(), req.input())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditCategoryCreated, r, category.ID)
	writeOK(w, http.StatusCreated, a.localizer(r).T("category.created"), category)
}

func (a *API) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CategoryRequest](a, w, r, maxBodySize)
	if !ok {
		return
	}
	category, err := a.content.UpdateCategory(r.Context(), chi.URLParam(r, "categoryID"), req.input())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditCategoryUpdated, r, category.ID)
	writeOK(w, http.StatusOK, a.localizer(r).T("category.updated"), category)
}

// DeleteCategory handles DELETE /categories/{categoryID}. A category that
// still has projects is refused with 409.
func (a *API) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "categoryID")
	if err := a.content.DeleteCategory(r.Context(), id); err != nil {
		a.mapError(w, r, err)
		return
	}
	a.auditMutation(AuditCategoryDeleted, r, id)
	writeOK(w, http.StatusOK, a.localizer(r).T("category.deleted"), nil)
}
