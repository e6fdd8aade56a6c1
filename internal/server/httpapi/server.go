// Package httpapi exposes the webhook endpoints and the user handle API over
// HTTP using chi.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/creditkeeper/internal/logging"
	"github.com/dmitrijs2005/creditkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/creditkeeper/internal/server/models"
	"github.com/dmitrijs2005/creditkeeper/internal/server/review"
	"github.com/dmitrijs2005/creditkeeper/internal/server/services"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/stripesig"
	"github.com/dmitrijs2005/creditkeeper/internal/server/webhooks/svixsig"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const shutdownTimeout = 10 * time.Second

type PaymentVerifier interface {
	Verify(body []byte, h http.Header) (*stripesig.Event, error)
}

type IdentityVerifier interface {
	Verify(body []byte, h http.Header) (*svixsig.Event, error)
}

type Ledger interface {
	ReconcilePayment(ctx context.Context, ev *stripesig.Event) (*models.Transaction, error)
}

type Identity interface {
	CheckAvailability(ctx context.Context, candidate, requesterExternalID string) (services.Availability, error)
	CommitHandle(ctx context.Context, externalID, candidate string) (*models.User, error)
	ProfileStatus(ctx context.Context, externalID string) (services.ProfileStatus, error)
	HandleIdentityEvent(ctx context.Context, ev *svixsig.Event) error
}

type Options struct {
	Address          string
	SessionSecret    string
	RequestTimeout   time.Duration
	PaymentVerifier  PaymentVerifier
	IdentityVerifier IdentityVerifier
	Ledger           Ledger
	Identity         Identity
	Review           review.Queue
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
}

type Server struct {
	address          string
	logger           logging.Logger
	jwtSecret        []byte
	requestTimeout   time.Duration
	paymentVerifier  PaymentVerifier
	identityVerifier IdentityVerifier
	ledger           Ledger
	identity         Identity
	review           review.Queue
	metrics          *metrics.Metrics
	metricsHandler   http.Handler
}

func NewServer(o Options, l logging.Logger) *Server {
	timeout := o.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		address:          o.Address,
		logger:           l.With("module", "http_server"),
		jwtSecret:        []byte(o.SessionSecret),
		requestTimeout:   timeout,
		paymentVerifier:  o.PaymentVerifier,
		identityVerifier: o.IdentityVerifier,
		ledger:           o.Ledger,
		identity:         o.Identity,
		review:           o.Review,
		metrics:          o.Metrics,
		metricsHandler:   o.MetricsHandler,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.metricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// Store calls carry their own deadlines; this bounds the whole request.
		api.Use(middleware.Timeout(s.requestTimeout))

		api.Route("/webhooks", func(wh chi.Router) {
			wh.Post("/payments", s.paymentWebhook)
			wh.Post("/identity", s.identityWebhook)
		})

		api.Route("/user", func(u chi.Router) {
			u.With(s.optionalSession).Get("/check-username", s.checkUsername)
			u.With(s.requireSession).Post("/update-username", s.updateUsername)
			u.Get("/profile-status", s.profileStatus)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
