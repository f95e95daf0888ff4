// Package httpserver is the hub's HTTP surface: routing, middleware, and
// request/response translation around the hub service.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MesaPay/hub/internal/auth"
	"github.com/MesaPay/hub/internal/config"
	"github.com/MesaPay/hub/internal/hub"
	"github.com/MesaPay/hub/internal/ledger"
	"github.com/MesaPay/hub/internal/logger"
)

// Server wires handlers, middleware, and dependencies.
type Server struct {
	handlers
	httpServer *http.Server
}

type handlers struct {
	cfg    *config.Config
	hub    *hub.Service
	logger zerolog.Logger
}

// New builds the HTTP server with a configured router.
func New(cfg *config.Config, svc *hub.Service, appLogger zerolog.Logger) *Server {
	router := chi.NewRouter()

	s := &Server{
		handlers: handlers{
			cfg:    cfg,
			hub:    svc,
			logger: appLogger,
		},
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      router,
		},
	}

	s.configureRouter(router)
	return s
}

func (h *handlers) configureRouter(router chi.Router) {
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler)

	router.Use(logger.Middleware(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	authCfg := auth.Config{
		Enabled: h.cfg.APIKey.Enabled,
		Keys:    make(map[string]ledger.Principal, len(h.cfg.APIKey.Keys)),
	}
	for key, principal := range h.cfg.APIKey.Keys {
		authCfg.Keys[key] = ledger.Principal(principal)
	}
	router.Use(auth.Middleware(authCfg))

	if h.cfg.RateLimit.Enabled {
		router.Use(httprate.LimitByIP(h.cfg.RateLimit.PerIPLimit, h.cfg.RateLimit.Window.Duration))
	}

	prefix := h.cfg.Server.RoutePrefix

	// Lightweight endpoints with a short timeout.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/healthz", h.health)
		r.Handle(prefix+"/metrics", promhttp.Handler())
		r.Get(prefix+"/v1/stats", h.getStats)
		r.Get(prefix+"/v1/tokens", h.listTokens)
		r.Get(prefix+"/v1/rates", h.getRates)
	})

	// Stateful endpoints. Payment verification waits on ledger calls, so
	// the timeout is generous.
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Post(prefix+"/v1/shops", h.createShop)
		r.Get(prefix+"/v1/shops", h.myShops)
		r.Get(prefix+"/v1/shops/{shopID}", h.getShop)
		r.Patch(prefix+"/v1/shops/{shopID}", h.updateShop)
		r.Post(prefix+"/v1/shops/{shopID}/withdraw", h.withdrawProfit)
		r.Get(prefix+"/v1/referrals", h.myReferredShops)

		r.Post(prefix+"/v1/invoices", h.createInvoice)
		r.Get(prefix+"/v1/invoices/{invoiceID}", h.getInvoice)
		r.Post(prefix+"/v1/invoices/{invoiceID}/verify", h.verifyPayment)
		r.Post(prefix+"/v1/invoices/{invoiceID}/unlock", h.forceUnlockInvoice)

		r.Post(prefix+"/v1/tokens", h.addToken)
		r.Delete(prefix+"/v1/tokens/{ticker}", h.removeToken)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
