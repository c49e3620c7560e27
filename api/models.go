package api

import (
	"time"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/upload"
)

// ActionResult is the envelope returned by every state-changing endpoint
// and by every error response.
type ActionResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// LoginRequest is the JSON or form body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from,omitempty"`
}

// LoginResponse is the data of a successful JSON login.
type LoginResponse struct {
	Redirect string      `json:"redirect"`
	User     UserSummary `json:"user"`
}

// SessionResponse is returned from GET /auth/session.
type SessionResponse struct {
	Authenticated bool      `json:"authenticated"`
	UserID        string    `json:"user_id,omitempty"`
	Username      string    `json:"username,omitempty"`
	Role          string    `json:"role,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
	Locale        string    `json:"locale"`
}

// ThemeRequest is the body for POST /theme.
type ThemeRequest struct {
	Theme string `json:"theme"`
}

// ThemeResponse is returned from GET /theme.
type ThemeResponse struct {
	Theme string `json:"theme"`
}

// LocaleRequest is the body for POST /locale.
type LocaleRequest struct {
	Locale string `json:"locale"`
}

// LocaleResponse is returned from GET /locale.
type LocaleResponse struct {
	Locale    string   `json:"locale"`
	Supported []string `json:"supported"`
}

// PostRequest is the body for POST /posts and PUT /posts/{id}. Tags is a
// comma or newline separated list.
type PostRequest struct {
	Title    string `json:"title"`
	Intro    string `json:"intro"`
	Content  string `json:"content"`
	Tags     string `json:"tags"`
	Featured bool   `json:"featured"`
	Version  uint64 `json:"version,omitempty"`
}

func (p PostRequest) input() content.PostInput {
	return content.PostInput{
		Title:    p.Title,
		Intro:    p.Intro,
		Content:  p.Content,
		Tags:     p.Tags,
		Featured: p.Featured,
		Version:  p.Version,
	}
}

// PostDetail is a post with its content rendered to HTML.
type PostDetail struct {
	content.Post
	HTML string `json:"html"`
}

// ListPostsResponse is returned from GET /posts.
type ListPostsResponse struct {
	Posts []content.Post `json:"posts"`
	PaginationMeta
}

type ProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	LinkName    string `json:"link_name"`
	Tags        string `json:"tags"`
	CategoryID  string `json:"category_id"`
	Featured    bool   `json:"featured"`
	Version     uint64 `json:"version,omitempty"`
}

func (p ProjectRequest) input() content.ProjectInput {
	return content.ProjectInput{
		Name:        p.Name,
		Description: p.Description,
		URL:         p.URL,
		LinkName:    p.LinkName,
		Tags:        p.Tags,
		CategoryID:  p.CategoryID,
		Featured:    p.Featured,
		Version:     p.Version,
	}
}

type ListProjectsResponse struct {
	Projects []content.Project `json:"projects"`
	PaginationMeta
}

type CategoryRequest struct {
	Name    string `json:"name"`
	Icon    string `json:"icon"`
	Order   int    `json:"order"`
	Version uint64 `json:"version,omitempty"`
}

func (c CategoryRequest) input() content.CategoryInput {
	return content.CategoryInput{Name: c.Name, Icon: c.Icon, Order: c.Order, Version: c.Version}
}

type ListCategoriesResponse struct {
	Categories []content.Category `json:"categories"`
}

// CategoryProjectsResponse is returned from GET /categories/projects.
type CategoryProjectsResponse struct {
	Categories []content.CategoryWithProjects `json:"categories"`
}

// UserSummary is a user without its password hash.
type UserSummary struct {
	ID        string       `json:"id"`
	Username  string       `json:"username"`
	Email     string       `json:"email,omitempty"`
	Role      content.Role `json:"role"`
	Active    bool         `json:"active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Version   uint64       `json:"version"`
}

func summarizeUser(u content.User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		Version:   u.Version,
	}
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateUserRequest changes only the fields that are present.
type UpdateUserRequest struct {
	Email   *string `json:"email,omitempty"`
	Role    *string `json:"role,omitempty"`
	Active  *bool   `json:"active,omitempty"`
	Version uint64  `json:"version,omitempty"`
}

type SetPasswordRequest struct {
	Password string `json:"password"`
}

type ListUsersResponse struct {
	Users []UserSummary `json:"users"`
	PaginationMeta
}

// UploadResponse is the data of a successful POST /uploads.
type UploadResponse struct {
	URLs  []string        `json:"urls"`
	Files []upload.Result `json:"files"`
}

// ListAuditResponse is returned from GET /audit.
type ListAuditResponse struct {
	Entries []AuditEntry `json:"entries"`
}
