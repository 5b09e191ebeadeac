// Package server assembles the console: backend client, cache poller, token
// store, table registries, views and the chi router, with optional TLS.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mailward/web/internal/api"
	"github.com/mailward/web/internal/authtoken"
	"github.com/mailward/web/internal/config"
	"github.com/mailward/web/internal/handlers"
	"github.com/mailward/web/internal/metrics"
	"github.com/mailward/web/internal/middleware"
	"github.com/mailward/web/internal/static"
	"github.com/mailward/web/internal/table"
	mwtls "github.com/mailward/web/internal/tls"
	"github.com/mailward/web/internal/views"
)

// mountIdle is how long a client may go without rendering before its poll
// subscriptions are dropped.
const mountIdle = 2 * time.Minute

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	tokens  *authtoken.Store
	client  *api.Client
	poller  *api.Poller
	mounts  *api.Mounts
	tables  *table.Registry
	metrics *metrics.Metrics
	http    *http.Server
	acme    *mwtls.ACMEManager
}

func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := authtoken.Open(cfg.Database.Path, cfg.Server.TLS.Enabled)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	viewEngine, err := views.New()
	if err != nil {
		tokens.Close()
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	client := api.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	poller := api.NewPoller(client.Cache(), cfg.Backend.PollInterval, logger)
	mounts := api.NewMounts(poller, mountIdle)
	tables := table.NewRegistry(func(campaignID string) *table.Controller {
		return table.NewController(client, campaignID, api.DefaultPageLimit)
	}, mountIdle)

	s := &Server{
		cfg:    cfg,
		logger: logger,
		tokens: tokens,
		client: client,
		poller: poller,
		mounts: mounts,
		tables: tables,
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
		metrics.SetGlobal(s.metrics)
		client.Cache().Observe(
			func(string) { metrics.IncCacheHit() },
			func(string) { metrics.IncCacheMiss() },
			metrics.IncInvalidation,
		)
		poller.Observe(metrics.IncPollTick)
		client.ObserveRequests(s.metrics.ObserveBackendRequest)
	}

	h := handlers.New(cfg, tokens, client, mounts, tables, viewEngine, logger)

	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.routes(h),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Server.TLS.Enabled && cfg.Server.TLS.ACME.Enabled {
		s.acme = mwtls.NewACMEManager(
			cfg.Server.TLS.ACME.Email,
			cfg.Server.TLS.ACME.Domains,
			cfg.Server.TLS.ACME.CacheDir,
		)
		s.http.TLSConfig = s.acme.TLSConfig()
	} else if cfg.Server.TLS.Enabled {
		tlsCfg, err := mwtls.LoadCertificate(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		if err != nil {
			tokens.Close()
			return nil, err
		}
		s.http.TLSConfig = tlsCfg
	}

	return s, nil
}

func (s *Server) routes(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logger(s.logger))
	if s.cfg.Metrics.Enabled {
		r.Use(metrics.HTTPMiddleware)
	}
	r.Use(middleware.MethodOverride)

	r.Get("/health", h.Health)
	r.Handle("/static/*", http.StripPrefix("/static/", static.Handler()))
	if s.cfg.Metrics.Enabled {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Public pages
	r.Get("/login", h.LoginPage)
	r.Get("/auth/callback", h.AuthCallback)
	r.Post("/logout", h.Logout)
	r.Get("/pricing", h.PricingPage)

	// Protected pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(s.tokens))

		r.Get("/", h.Dashboard)

		r.Get("/campaigns", h.CampaignList)
		r.Get("/campaigns/new", h.CampaignNewPage)
		r.Post("/campaigns", h.CampaignCreate)
		r.Get("/campaigns/{id}", h.CampaignView)
		r.Get("/campaigns/{id}/delete", h.CampaignDeletePage)
		r.Delete("/campaigns/{id}", h.CampaignDelete)
		r.Post("/campaigns/{id}/recalculate", h.CampaignRecalculate)
		r.Post("/campaigns/{id}/page/next", h.RecipientsPageNext)
		r.Post("/campaigns/{id}/page/prev", h.RecipientsPagePrev)
		r.Post("/campaigns/{id}/upload", h.RecipientsUpload)

		r.Post("/campaigns/{id}/recipients", h.RecipientAdd)
		r.Post("/campaigns/{id}/recipients/{rid}/edit", h.RecipientEdit)
		r.Post("/campaigns/{id}/recipients/{rid}/cancel", h.RecipientEditCancel)
		r.Put("/campaigns/{id}/recipients/{rid}", h.RecipientUpdate)
		r.Post("/campaigns/{id}/recipients/{rid}/delete", h.RecipientDelete)
		r.Post("/campaigns/{id}/recipients/{rid}/delete/cancel", h.RecipientDeleteCancel)
		r.Post("/campaigns/{id}/recipients/{rid}/trigger", h.RecipientTrigger)

		r.Post("/pricing/order", h.PricingOrder)
		r.Post("/pricing/verify", h.PricingVerify)
		r.Post("/pricing/activate-free", h.PricingActivateFree)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if s.acme != nil {
		// HTTP-01 challenge listener; other traffic redirects to HTTPS.
		go func() {
			challenge := &http.Server{
				Addr: ":80",
				Handler: s.acme.HTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
				})),
			}
			if err := challenge.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Error("acme challenge listener failed", "error", err)
			}
		}()

		certs, err := s.acme.EnsureCertificates(ctx)
		if err != nil {
			s.logger.Warn("certificate warmup failed", "error", err)
		}
		for _, c := range certs {
			s.logger.Info("certificate ready", "subject", c.Subject, "days_left", c.DaysLeft)
		}
	}

	go func() {
		s.logger.Info("starting web console", "addr", s.cfg.Server.ListenAddr, "backend", s.cfg.Backend.BaseURL)
		if s.http.TLSConfig != nil {
			errCh <- s.http.ListenAndServeTLS("", "")
		} else {
			errCh <- s.http.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		s.shutdownComponents()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
		s.shutdownComponents()
		return nil
	}
}

func (s *Server) shutdownComponents() {
	s.mounts.Close()
	s.poller.Stop()
	s.tables.Close()
	s.tokens.Close()
}
