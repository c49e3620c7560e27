package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/jmcleod/quill/api"
	"github.com/jmcleod/quill/config"
	"github.com/jmcleod/quill/content"
	"github.com/jmcleod/quill/gate"
	"github.com/jmcleod/quill/i18n"
	"github.com/jmcleod/quill/internal/util"
	"github.com/jmcleod/quill/locale"
	"github.com/jmcleod/quill/ratelimit"
	"github.com/jmcleod/quill/session"
	"github.com/jmcleod/quill/upload"
	"github.com/jmcleod/quill/web"
)

const uploadsPrefix = "/uploads"

var supportedLocales = []string{"zh", "en"}

// Paths the gate never inspects: the API guards itself and static assets
// need no session.
var gateSkipPrefixes = []string{
	"/api/",
	"/health",
	uploadsPrefix + "/",
	"/app.js",
	"/style.css",
	"/favicon.ico",
}

var (
	port        int
	dataDir     string
	storageKind string
	tlsCert     string
	tlsKey      string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the blog server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := applyServerFlags(cmd, cfg); err != nil {
			return err
		}
		if (tlsCert == "") != (tlsKey == "") {
			return fmt.Errorf("--tls-cert and --tls-key must be given together")
		}

		logger := cfg.Logger()
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.close()

		var tlsConfig *tls.Config
		if tlsCert != "" {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			tlsConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           app.handler,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (storage: %s, env: %s)...\n", cfg.Port, cfg.Storage, cfg.Env)

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides QUILL_PORT)")
	serverCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides QUILL_DATA_DIR)")
	serverCmd.Flags().StringVar(&storageKind, "storage", "", "Storage backend: bbolt, sqlite, postgres or memory (overrides QUILL_STORAGE)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}

// applyServerFlags lets explicitly set flags win over the environment.
func applyServerFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("data-dir") {
		// Keep the default upload directory inside the data directory.
		if cfg.UploadDir == cfg.DataDir+"/uploads" {
			cfg.UploadDir = dataDir + "/uploads"
		}
		cfg.DataDir = dataDir
	}
	if flags.Changed("storage") {
		cfg.Storage = strings.ToLower(storageKind)
	}
	return cfg.Validate()
}

// app is the fully wired HTTP handler and the resources behind it.
type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp opens storage and assembles the router. Background workers stop
// when ctx is cancelled or close is called.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	sessions, err := session.NewCodec(cfg.AuthSecret, cfg.Production())
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_SECRET: %w", err)
	}

	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := closeRepo(); err != nil {
			logger.Error("closing storage", "error", err)
		}
	})

	store := content.NewStore(repo)
	if cfg.Storage == config.StorageMemory {
		if err := bootstrapMemoryAdmin(ctx, store); err != nil {
			return nil, err
		}
	}

	locales, err := locale.NewResolver(supportedLocales, cfg.DefaultLocale)
	if err != nil {
		return nil, err
	}
	catalog, err := i18n.LoadEmbedded(locales.Supported(), locales.Default())
	if err != nil {
		return nil, err
	}
	trusted, err := ratelimit.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	var limiter ratelimit.Limiter
	switch cfg.RateLimitBackend {
	case config.RateLimitStore:
		s := ratelimit.NewStore(repo, ratelimit.DefaultWindow, ratelimit.DefaultMax)
		a.closers = append(a.closers, s.Close)
		limiter = s
	default:
		m := ratelimit.NewMemory(ratelimit.DefaultWindow, ratelimit.DefaultMax)
		sweepCtx, cancel := context.WithCancel(ctx)
		a.closers = append(a.closers, cancel)
		go m.RunSweeper(sweepCtx, time.Minute)
		limiter = m
	}

	uploads, err := upload.NewLocal(cfg.UploadDir, uploadsPrefix, upload.WithMaxSize(cfg.UploadMaxSize))
	if err != nil {
		return nil, err
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithLimiter(limiter),
		api.WithTrustedProxies(trusted),
		api.WithUploads(uploads, cfg.UploadMaxSize),
		api.WithSecureCookies(cfg.Production()),
		api.WithAuditStore(repo, cfg.AuditMaxEntries),
		api.WithAlertFunc(func(e api.AlertEvent) {
			logger.Warn("security alert", "type", e.Type, "count", e.Count, "threshold", e.Threshold, "message", e.Message)
		}),
	}
	if cfg.AuditWebhookURL != "" {
		opts = append(opts, api.WithAuditWebhook(cfg.AuditWebhookURL, cfg.AuditWebhookAuth))
	}
	quill := api.New(store, sessions, locales, catalog, opts...)
	a.closers = append(a.closers, quill.Close)

	g, err := gate.New(gate.Config{
		Sessions:      sessions,
		Locales:       locales,
		SkipPrefixes:  gateSkipPrefixes,
		SecureCookies: cfg.Production(),
		Logger:        logger.With("component", "gate"),
	})
	if err != nil {
		return nil, err
	}

	webHandler, err := web.Handler(locales.Default())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	var apiHandler http.Handler = quill.Router()
	if len(cfg.CORSOrigins) > 0 {
		apiHandler = cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token", "Accept-Language"},
			AllowCredentials: true,
		}).Handler(apiHandler)
	}
	r.Mount("/api/v1", apiHandler)

	r.Handle(uploadsPrefix+"/*", http.StripPrefix(uploadsPrefix+"/", noDirListing(http.FileServer(http.Dir(uploads.Dir())))))

	r.With(g.Middleware).Handle("/*", webHandler)

	a.handler = r
	return a, nil
}

// noDirListing hides directory indexes of the upload directory.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bootstrapMemoryAdmin creates a throwaway admin so an in-memory server can
// be logged into. The password is printed once.
func bootstrapMemoryAdmin(ctx context.Context, store *content.Store) error {
	password, err := util.RandomChars(generatedPasswordLength)
	if err != nil {
		return err
	}
	if _, _, err := store.EnsureAdmin(ctx, defaultAdminUsername, "", password); err != nil {
		return fmt.Errorf("creating admin account: %w", err)
	}
	fmt.Fprintf(os.Stderr, "In-memory storage: log in as %q with password %q\n", defaultAdminUsername, password)
	return nil
}
