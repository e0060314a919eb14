// Package server exposes the HTTP API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DanielBronsky/cnpf-feeder/internal/auth"
	"github.com/DanielBronsky/cnpf-feeder/internal/chat"
	"github.com/DanielBronsky/cnpf-feeder/internal/config"
	"github.com/DanielBronsky/cnpf-feeder/internal/notify"
	"github.com/DanielBronsky/cnpf-feeder/internal/roster"
	"github.com/DanielBronsky/cnpf-feeder/internal/store"
)

// Deps are the collaborators of the HTTP layer. Notifier, Exporter, Registry
// and Now are optional.
type Deps struct {
	Config   config.Config
	Store    store.Store
	Codec    *auth.Codec
	Notifier notify.Notifier
	Exporter roster.Exporter
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Now      func() time.Time
}

type Server struct {
	cfg       config.Config
	store     store.Store
	codec     *auth.Codec
	resolver  *auth.Resolver
	notifier  notify.Notifier
	exporter  roster.Exporter
	assistant *chat.Assistant
	log       *slog.Logger
	metrics   *metrics
	registry  *prometheus.Registry
	now       func() time.Time
}

func newServer(d Deps) *Server {
	s := &Server{
		cfg:      d.Config,
		store:    d.Store,
		codec:    d.Codec,
		notifier: d.Notifier,
		exporter: d.Exporter,
		log:      d.Logger,
		registry: d.Registry,
		now:      d.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.resolver = auth.NewResolver(d.Codec, d.Store, s.log)
	s.assistant = chat.New(d.Store)
	s.metrics = newMetrics(s.registry)
	return s
}

// New builds the HTTP server for cfg.HTTPAddr.
func New(d Deps) *http.Server {
	return &http.Server{
		Addr:              d.Config.HTTPAddr,
		Handler:           Handler(d),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Handler returns the routed API.
func Handler(d Deps) http.Handler {
	return newServer(d).routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(s.recoverer)
	r.Use(s.instrument)
	r.Use(s.trace)
	r.Use(s.session)

	r.NotFound(s.handle(func(w http.ResponseWriter, r *http.Request) error { return store.ErrNotFound }))
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
	})

	r.Get("/healthz", s.handle(s.healthz))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handle(s.register))
		r.Post("/login", s.handle(s.login))
		r.Post("/logout", s.handle(s.logout))
		r.Get("/me", s.handle(s.me))
	})

	r.Route("/user", func(r chi.Router) {
		r.Get("/avatar/{id}", s.handle(s.avatar))
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Patch("/me", s.handle(s.updateProfile))
			r.Post("/me/password", s.handle(s.updatePassword))
		})
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.handle(s.listReports))
		r.Get("/{id}", s.handle(s.getReport))
		r.Get("/{id}/photos/{idx}", s.handle(s.reportPhoto))
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/", s.handle(s.createReport))
			r.Patch("/{id}", s.handle(s.updateReport))
			r.Delete("/{id}", s.handle(s.deleteReport))
		})
	})

	r.Route("/competitions", func(r chi.Router) {
		r.Get("/", s.handle(s.listCompetitions))
		r.Get("/{id}", s.handle(s.getCompetition))
		r.Get("/{id}/registrations", s.handle(s.listRegistrations))
		r.Get("/{id}/registrations.csv", s.handle(s.registrationsCSV))
		r.With(s.requireAuth).Post("/{id}/registrations", s.handle(s.createRegistration))
		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/", s.handle(s.createCompetition))
			r.Patch("/{id}", s.handle(s.updateCompetition))
			r.Delete("/{id}", s.handle(s.deleteCompetition))
			r.Post("/{id}/registrations/export", s.handle(s.exportRegistrations))
		})
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Patch("/{id}", s.handle(s.updateRegistration))
		r.Delete("/{id}", s.handle(s.deleteRegistration))
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Get("/users", s.handle(s.adminUsers))
		r.Get("/users/{id}", s.handle(s.adminUser))
		r.Patch("/users/{id}", s.handle(s.adminUpdateUser))
		r.Delete("/users/{id}", s.handle(s.adminDeleteUser))
	})

	r.Get("/chat", s.handle(s.chat))
	return r
}
