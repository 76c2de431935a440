package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/api/handlers"
	"example.com/eventreg/internal/api/middleware"
	"example.com/eventreg/internal/metrics"
	"example.com/eventreg/internal/services"
	"example.com/eventreg/internal/tracing"
)

// Server represents the HTTP server
type Server struct {
	config        config.Config
	router        *gin.Engine
	httpServer    *http.Server
	registrations *services.RegistrationService
	payments      *services.PaymentService
	invoices      *services.InvoiceService
	certificates  *services.CertificateService
	metrics       *metrics.Metrics
	tracer        tracing.Tracer
}

// NewServer creates a new HTTP server
func NewServer(
	cfg config.Config,
	registrations *services.RegistrationService,
	payments *services.PaymentService,
	invoices *services.InvoiceService,
	certificates *services.CertificateService,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *Server {
	server := &Server{
		config:        cfg,
		registrations: registrations,
		payments:      payments,
		invoices:      invoices,
		certificates:  certificates,
		metrics:       metricsCollector,
		tracer:        tracer,
	}

	server.router = server.setupRouter()
	server.httpServer = &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: server.router,
	}

	return server
}

// setupRouter configures the HTTP router
func (s *Server) setupRouter() *gin.Engine {
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	if app := s.tracer.Application(); app != nil {
		router.Use(middleware.NewRelicMiddleware(app))
	}

	handlers.NewBatchHandler(s.registrations, s.payments, s.tracer).RegisterRoutes(router)
	handlers.NewPaymentHandler(s.payments, s.tracer).RegisterRoutes(router)
	handlers.NewWebhookHandler(s.payments).RegisterRoutes(router)
	handlers.NewInvoiceHandler(s.invoices).RegisterRoutes(router)
	handlers.NewCertificateHandler(s.certificates).RegisterRoutes(router)
	handlers.NewMetricsHandler(s.metrics, s.tracer).RegisterRoutes(router)

	return router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("address", s.config.ServerAddress).Msg("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "HTTP server error")
	}

	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "HTTP server shutdown error")
	}

	log.Info().Msg("HTTP server shut down successfully")
	return nil
}
