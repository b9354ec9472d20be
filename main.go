package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"connectkids/internal/backend"
	"connectkids/internal/config"
	"connectkids/internal/impact"
	"connectkids/internal/opportunity"
	"connectkids/internal/querycache"
	"connectkids/internal/session"
)

type Server struct {
	router    *mux.Router
	hub       *Hub
	upgrader  websocket.Upgrader
	templates map[string]*template.Template
	logger    *slog.Logger

	backend       backend.Client
	login         backend.PasswordLogin
	sessions      *session.Provider
	listings      *querycache.Cache
	opportunities *opportunity.Service
	impact        *impact.Page
	limiter       *submitLimiter

	csrfKey       []byte
	secureCookies bool
	publicURL     string
	staticDir     string

	cancel          context.CancelFunc
	stopInvalidates func()
	stopSessionLog  func()
}

// Options wires a Server. Login is nil when sign-in happens on the hosted
// service.
type Options struct {
	Backend       backend.Client
	Login         backend.PasswordLogin
	Logger        *slog.Logger
	CSRFKey       []byte
	SecureCookies bool
	PublicURL     string
	StaticDir     string
	SessionTTL    time.Duration
	ListingTTL    time.Duration
	SubmitRate    float64
	SubmitBurst   int
}

func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("server: backend is required")
	}
	if len(opts.CSRFKey) != 32 {
		return nil, errors.New("server: csrf key must be 32 bytes")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.SubmitRate <= 0 {
		opts.SubmitRate = 1
	}
	if opts.SubmitBurst <= 0 {
		opts.SubmitBurst = 5
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	page, err := impact.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load impact content: %w", err)
	}

	listings := querycache.New(opts.ListingTTL)
	s := &Server{
		router:        mux.NewRouter(),
		hub:           newHub(logger),
		templates:     templates,
		logger:        logger,
		backend:       opts.Backend,
		login:         opts.Login,
		sessions:      session.NewProvider(opts.Backend, opts.SessionTTL),
		listings:      listings,
		opportunities: opportunity.NewService(opts.Backend, listings, logger),
		impact:        page,
		limiter:       newSubmitLimiter(opts.SubmitRate, opts.SubmitBurst),
		csrfKey:       opts.CSRFKey,
		secureCookies: opts.SecureCookies,
		publicURL:     opts.PublicURL,
		staticDir:     opts.StaticDir,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.sameOrigin,
	}
	s.stopInvalidates = listings.OnInvalidate(s.broadcastInvalidation)
	s.stopSessionLog = s.sessions.Subscribe(func(string) {
		logger.Debug("session refreshed")
	})

	s.setupRoutes()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.run(ctx)
	go s.limiter.run(ctx)

	return s, nil
}

// Close stops the hub and the limiter sweep.
func (s *Server) Close() {
	s.stopInvalidates()
	s.stopSessionLog()
	s.sessions.Close()
	s.cancel()
	<-s.hub.done
}

func (s *Server) setupRoutes() {
	if s.staticDir != "" {
		s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}

	s.router.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	s.router.HandleFunc("/CreateOpportunity", s.handleCreateOpportunityPage).Methods(http.MethodGet)
	s.router.HandleFunc("/CreateOpportunity", s.handleCreateOpportunity).Methods(http.MethodPost)
	s.router.HandleFunc("/Impact", s.handleImpactPage).Methods(http.MethodGet)
	s.router.HandleFunc("/Opportunities", s.handleOpportunitiesPage).Methods(http.MethodGet)
	s.router.HandleFunc("/CompleteProfile", s.handleCompleteProfilePage).Methods(http.MethodGet)
	s.router.HandleFunc("/CompleteProfile", s.handleCompleteProfile).Methods(http.MethodPost)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	if s.login != nil {
		s.router.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
		s.router.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
		s.router.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	} else {
		s.router.HandleFunc(callbackPath, s.handleAuthCallback).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler returns the router behind the request logger, POST rate limit
// and CSRF protection.
func (s *Server) Handler() http.Handler {
	protect := csrf.Protect(s.csrfKey,
		csrf.Secure(s.secureCookies),
		csrf.Path("/"),
		csrf.FieldName("csrf_token"),
		csrf.ErrorHandler(http.HandlerFunc(s.handleCSRFFailure)),
	)

	var h http.Handler = protect(s.router)
	if !s.secureCookies {
		inner := h
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inner.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	}
	h = s.limiter.middleware(h)
	return requestLogger(s.logger, h)
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend.Client, backend.PasswordLogin, func(), error) {
	if cfg.Remote() {
		client := backend.NewHTTPClient(cfg.BackendURL, cfg.LoginURL, cfg.BackendTimeout)
		logger.Info("using hosted data service", "url", cfg.BackendURL)
		return client, nil, func() {}, nil
	}

	secret, err := cfg.SessionKey()
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := backend.OpenLocal(ctx, backend.LocalOptions{
		Path:         cfg.DatabasePath,
		Secret:       secret,
		SeedPassword: cfg.SeedPassword,
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("using local data store", "path", cfg.DatabasePath)
	return store, store, func() {
		if err := store.Close(); err != nil {
			logger.Error("close database", "error", err)
		}
	}, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	client, login, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	csrfKey, err := cfg.CSRFSecret()
	if err != nil {
		return err
	}

	server, err := NewServer(Options{
		Backend:       client,
		Login:         login,
		Logger:        logger,
		CSRFKey:       csrfKey,
		SecureCookies: cfg.SecureCookies,
		PublicURL:     cfg.PublicURL,
		StaticDir:     cfg.StaticDir,
		SessionTTL:    cfg.SessionTTL,
		ListingTTL:    cfg.ListingTTL,
		SubmitRate:    cfg.SubmitRate,
		SubmitBurst:   cfg.SubmitBurst,
	})
	if err != nil {
		return err
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "public_url", cfg.PublicURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
