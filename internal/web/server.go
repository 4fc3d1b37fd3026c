// Package web provides the HTTP controller layer: routing, middleware,
// and handlers that translate between the wire and the import/customer
// services. No business rules live here.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/CRM/internal/config"
	"github.com/JonMunkholm/CRM/internal/customer"
	"github.com/JonMunkholm/CRM/internal/ingest"
	"github.com/JonMunkholm/CRM/internal/store"
	mw "github.com/JonMunkholm/CRM/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Importer runs one import batch. Satisfied by *ingest.Service.
type Importer interface {
	Ingest(ctx context.Context, p ingest.Params) (*customer.BatchOutcomeReport, error)
}

// Directory is the customer CRUD surface the handlers need.
// Satisfied by *store.PgStore.
type Directory interface {
	ListCustomers(ctx context.Context, p store.ListParams) ([]store.Customer, int64, error)
	Statistics(ctx context.Context, p store.ListParams) (*store.CustomerStatistics, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (*store.Customer, error)
	CreateCustomer(ctx context.Context, c store.Customer) (uuid.UUID, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, c store.Customer) error
	DeleteCustomer(ctx context.Context, id uuid.UUID) error
	CreateAddress(ctx context.Context, a store.Address) (uuid.UUID, error)
	UpdateAddress(ctx context.Context, a store.Address) error
	DeleteAddress(ctx context.Context, customerID, addressID uuid.UUID) error
	ListBatches(ctx context.Context, limit int) ([]store.ImportBatch, error)
}

// Server is the HTTP server for the customer import service.
type Server struct {
	importer Importer
	dir      Directory
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
}

// NewServer wires routes and middleware around the given services.
func NewServer(importer Importer, dir Directory, cfg *config.Config) *Server {
	s := &Server{
		importer: importer,
		dir:      dir,
		cfg:      cfg,
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
	s.router.Use(securityHeaders)

	if s.cfg.Rate.Enabled {
		limiter := newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		r.Post("/customers/import", s.handleImport)
		r.Get("/imports", s.handleImportHistory)

		r.Get("/customers", s.handleListCustomers)
		r.Post("/customers", s.handleCreateCustomer)
		r.Route("/customers/{customerID}", func(r chi.Router) {
			r.Get("/", s.handleGetCustomer)
			r.Put("/", s.handleUpdateCustomer)
			r.Delete("/", s.handleDeleteCustomer)

			r.Post("/addresses", s.handleCreateAddress)
			r.Put("/addresses/{addressID}", s.handleUpdateAddress)
			r.Delete("/addresses/{addressID}", s.handleDeleteAddress)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// securityHeaders adds standard hardening headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is a token bucket rate limiter per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     int
	window   time.Duration
}

type visitor struct {
	tokens    int
	lastReset time.Time
}

func newRateLimiter(rate int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate,
		window:   window,
	}
	go rl.cleanup()
	return rl
}

// cleanup removes stale visitor entries every minute.
func (rl *rateLimiter) cleanup() {
	for {
		time.Sleep(time.Minute)
		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if time.Since(v.lastReset) > rl.window*2 {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		rl.visitors[ip] = &visitor{tokens: rl.rate - 1, lastReset: time.Now()}
		return true
	}

	if time.Since(v.lastReset) > rl.window {
		v.tokens = rl.rate - 1
		v.lastReset = time.Now()
		return true
	}

	if v.tokens <= 0 {
		return false
	}

	v.tokens--
	return true
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientHost(r.RemoteAddr)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientHost strips the ephemeral port so every connection from one
// client shares a bucket. TrustedRealIP may have already replaced
// RemoteAddr with a bare IP, which passes through unchanged.
func clientHost(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
