package content

import "time"

// Role is a user's authorization level.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Intro     string    `json:"intro"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Featured  bool      `json:"featured"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   uint64    `json:"version"`
}

func (p *Post) setVersion(v uint64) { p.Version = v }

type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url,omitempty"`
	LinkName    string    `json:"link_name,omitempty"`
	Tags        []string  `json:"tags"`
	CategoryID  string    `json:"category_id"`
	Featured    bool      `json:"featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Version     uint64    `json:"version"`
}

func (p *Project) setVersion(v uint64) { p.Version = v }

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon,omitempty"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   uint64    `json:"version"`
}

func (c *Category) setVersion(v uint64) { c.Version = v }

// CategoryWithProjects is a category together with its projects, newest first.
type CategoryWithProjects struct {
	Category
	Projects []Project `json:"projects"`
}

// User is a stored account. PasswordHash never leaves the package boundary
// through the API; handlers convert to a summary first.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"password_hash"`
	Role         Role      `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      uint64    `json:"version"`
}

func (u *User) setVersion(v uint64) { u.Version = v }

// IsActiveAdmin reports whether u counts towards the active admin total.
func (u User) IsActiveAdmin() bool {
	return u.Active && u.Role == RoleAdmin
}

// Stats are the dashboard counters.
type Stats struct {
	Posts      int `json:"posts"`
	Projects   int `json:"projects"`
	Categories int `json:"categories"`
	Users      int `json:"users"`
}
