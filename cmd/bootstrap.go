package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"example.com/eventreg/config"
	"example.com/eventreg/internal/cache"
	"example.com/eventreg/internal/database"
	"example.com/eventreg/internal/gateway"
	"example.com/eventreg/internal/invoices"
	"example.com/eventreg/internal/metrics"
	"example.com/eventreg/internal/models"
	"example.com/eventreg/internal/pricing"
	"example.com/eventreg/internal/repositories"
	"example.com/eventreg/internal/search"
	"example.com/eventreg/internal/services"
	"example.com/eventreg/internal/settlement"
	"example.com/eventreg/internal/tracing"

	eventregcurrency "example.com/eventreg/internal/currency"
)

// application bundles everything a command needs after bootstrap.
type application struct {
	cfg           config.Config
	databases     *database.Databases
	cache         *cache.RedisCache
	tracer        tracing.Tracer
	metrics       *metrics.Metrics
	countries     *repositories.CountryCurrencyRepository
	registrations *services.RegistrationService
	payments      *services.PaymentService
	invoices      *services.InvoiceService
	certificates  *services.CertificateService
}

// bootstrap loads configuration, connects the infrastructure and wires the
// services. Optional infrastructure (cache, tracing, search) degrades to a
// warning; the database is required.
func bootstrap() (*application, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, err
	}

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	databases, err := database.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}

	if err := models.SetupModels(databases.DB); err != nil {
		return nil, errors.Wrap(err, "failed to run migrations")
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Disabled()
	}

	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without settlement indexing")
	}

	metricsCollector := metrics.NewMetrics()

	db, readOnlyDB := databases.DB, databases.ReadOnlyDB

	paymentRepo := repositories.NewPaymentRepository(db, readOnlyDB)
	batchRepo := repositories.NewBatchRepository(db, readOnlyDB)
	schoolRepo := repositories.NewSchoolRepository(db, readOnlyDB)
	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	registrationRepo := repositories.NewRegistrationRepository(db, readOnlyDB)
	countryRepo := repositories.NewCountryCurrencyRepository(db, readOnlyDB)

	// The settlement strategy is fixed at startup: transactional when the
	// database supports it, sequential with logged reconciliation otherwise.
	transactional := cfg.DB.Transactional && settlement.ProbeTransactionSupport(db)
	if !transactional {
		log.Warn().Msg("Multi-record transactions unavailable, using sequential settlement")
	}
	transitioner := settlement.New(db, paymentRepo, batchRepo, transactional)

	resolver := eventregcurrency.NewResolver(countryRepo, redisCache, cfg.Currency.Default, cfg.Currency.CacheTTL)
	calculator := pricing.NewCalculator(resolver)

	adapter := gateway.NewMidtransAdapter(cfg.Gateway)

	generator := invoices.NewGenerator(
		batchRepo, paymentRepo, schoolRepo, eventRepo, registrationRepo,
		invoices.NewFileRenderer(cfg.Invoice), cfg.Invoice.BulkSize,
	)

	paymentService := services.NewPaymentService(
		db, readOnlyDB, transitioner, adapter, generator,
		elasticClient, redisCache, metricsCollector, tracer,
	)
	registrationService := services.NewRegistrationService(db, readOnlyDB, calculator, paymentService, redisCache)
	invoiceService := services.NewInvoiceService(db, readOnlyDB, generator, metricsCollector)
	certificateService := services.NewCertificateService(db, readOnlyDB, cfg.Certificates, metricsCollector)

	return &application{
		cfg:           cfg,
		databases:     databases,
		cache:         redisCache,
		tracer:        tracer,
		metrics:       metricsCollector,
		countries:     countryRepo,
		registrations: registrationService,
		payments:      paymentService,
		invoices:      invoiceService,
		certificates:  certificateService,
	}, nil
}
