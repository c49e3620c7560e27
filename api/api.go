// Package api implements the quill REST API mounted under /api/v1.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/guard"
	"github.com/jmcleod/quill/i18n"
	"github.com/jmcleod/quill/internal/httputil"
	"github.com/jmcleod/quill/locale"
	"github.com/jmcleod/quill/ratelimit"
	"github.com/jmcleod/quill/session"
	"github.com/jmcleod/quill/storage"
	"github.com/jmcleod/quill/upload"
)

// maxBodySize bounds JSON and form bodies outside the upload endpoint.
const maxBodySize = 1 << 20

// API holds the dependencies needed by the REST handlers.
type API struct {
	content  *content.Store
	sessions *session.Codec
	guard    *guard.Guard
	locales  *locale.Resolver
	catalog  *i18n.Catalog

	limiter        ratelimit.Limiter
	trustedProxies []netip.Prefix

	uploads       upload.Storage
	uploadMaxSize int64

	secureCookies bool

	logger     *slog.Logger
	audit      *auditLogger
	webhookCfg *webhookConfig
	webhook    *auditWebhook
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for request errors and audit
// events. If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) { a.logger = logger }
}

// WithLimiter replaces the in-memory login limiter.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithTrustedProxies sets the proxies whose forwarding headers identify
// the client for rate limiting.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) { a.trustedProxies = prefixes }
}

// WithUploads enables POST /uploads.
func WithUploads(s upload.Storage, maxSize int64) Option {
	return func(a *API) {
		a.uploads = s
		a.uploadMaxSize = maxSize
	}
}

// WithSecureCookies forces the Secure attribute on every cookie.
func WithSecureCookies(secure bool) Option {
	return func(a *API) { a.secureCookies = secure }
}

// WithAuditStore persists audit entries in repo, keeping at most maxEntries.
func WithAuditStore(repo storage.Repository, maxEntries int) Option {
	return func(a *API) { a.audit.store = newAuditStore(repo, maxEntries) }
}

// WithAuditWebhook forwards every audit record to url as JSON. authHeader
// is an optional "Name: value" header sent with each delivery.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookCfg = &webhookConfig{
			url:        url,
			auth:       authHeader,
			attempts:   webhookAttempts,
			retryDelay: webhookRetryDelay,
			queueSize:  webhookQueueSize,
		}
	}
}

// WithAlertFunc registers a callback for anomaly alerts such as login
// failure spikes.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) { a.audit.metrics = newMetricsCollector(fn) }
}

// New creates a new API instance.
func New(store *content.Store, sessions *session.Codec, locales *locale.Resolver, catalog *i18n.Catalog, opts ...Option) *API {
	a := &API{
		content:  store,
		sessions: sessions,
		locales:  locales,
		catalog:  catalog,
		audit:    &auditLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.limiter == nil {
		a.limiter = ratelimit.NewMemory(ratelimit.DefaultWindow, ratelimit.DefaultMax)
	}
	a.audit.logger = a.logger.With("component", "audit")
	if a.webhookCfg != nil {
		a.webhook = newAuditWebhook(*a.webhookCfg, a.logger.With("component", "audit_webhook"))
		a.audit.webhook = a.webhook
	}
	a.guard = guard.New(sessions, guard.WithErrorHandler(a.rejectAction))
	return a
}

// Close delivers queued audit records and stops background delivery.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(SecurityHeaders)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Post("/auth/login", a.Login)
	r.Post("/auth/logout", a.Logout)
	r.Get("/auth/session", a.Session)

	r.Get("/theme", a.GetTheme)
	r.Post("/theme", a.SetTheme)
	r.Get("/locale", a.GetLocale)
	r.Post("/locale", a.SetLocale)

	r.Get("/posts", a.ListPosts)
	r.Get("/posts/{postID}", a.GetPost)
	r.Get("/projects", a.ListProjects)
	r.Get("/projects/{projectID}", a.GetProject)
	r.Get("/categories", a.ListCategories)
	r.Get("/categories/projects", a.ListCategoryProjects)

	r.Group(func(r chi.Router) {
		r.Use(a.guard.RequireAction)
		r.Post("/posts", a.CreatePost)
		r.Put("/posts/{postID}", a.UpdatePost)
		r.Delete("/posts/{postID}", a.DeletePost)

		r.Post("/projects", a.CreateProject)
		r.Put("/projects/{projectID}", a.UpdateProject)
		r.Delete("/projects/{projectID}", a.DeleteProject)

		r.Post("/categories", a.CreateCategory)
		r.Put("/categories/{categoryID}", a.UpdateCategory)
		r.Delete("/categories/{categoryID}", a.DeleteCategory)
	})

	r.With(a.guard.RequireSession).Get("/dashboard/stats", a.DashboardStats)

	r.With(
		chimw.RequestSize(a.uploadBodyLimit()),
		a.guard.RequireSession,
		a.parseUploadForm,
		a.guard.RequireAction,
	).Post("/uploads", a.Upload)

	r.Route("/users", func(r chi.Router) {
		r.With(a.guard.RequireAdmin).Get("/", a.ListUsers)
		r.Group(func(r chi.Router) {
			r.Use(a.guard.RequireAdminAction)
			r.Post("/", a.CreateUser)
			r.Put("/{userID}", a.UpdateUser)
			r.Put("/{userID}/password", a.SetUserPassword)
			r.Delete("/{userID}", a.DeleteUser)
		})
	})

	r.With(a.guard.RequireAdmin).Get("/audit", a.ListAudit)

	return r
}

// uploadBodyLimit leaves room for multipart framing around the files.
func (a *API) uploadBodyLimit() int64 {
	if a.uploadMaxSize <= 0 {
		return upload.DefaultMaxSize * 4
	}
	return a.uploadMaxSize*4 + 64<<10
}

func (a *API) localizer(r *http.Request) *i18n.Localizer {
	loc, ok := locale.FromContext(r.Context())
	if !ok {
		loc = a.locales.FromRequest(r)
	}
	return a.catalog.Localizer(loc)
}

func (a *API) secure(r *http.Request) bool {
	return a.secureCookies || httputil.IsSecure(r)
}
