package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/eventreg/internal/messaging"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker to process queued gateway notifications,
sweep settled batches for missing invoices and issue certificates`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		if err := app.databases.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database connections")
		}
	}()

	app.certificates.ValidateKeys(ctx)

	g, ctx := errgroup.WithContext(ctx)

	azureBus, err := messaging.NewAzureServiceBus(app.cfg.Azure, app.tracer)
	if err != nil {
		return err
	}

	g.Go(func() error {
		log.Info().Str("queue", app.cfg.Azure.QueueName).Msg("Starting Azure Service Bus processor")
		return azureBus.ProcessMessages(ctx, app.payments.ProcessQueueMessage)
	})

	g.Go(func() error {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		// Invoice sweep catches batches whose post-settlement generation
		// failed; Generate is idempotent so overlap with the API is safe.
		_, err = scheduler.NewJob(
			gocron.DurationJob(10*time.Minute),
			gocron.NewTask(func() {
				if _, err := app.invoices.BulkGenerate(ctx); err != nil {
					log.Error().Err(err).Msg("Bulk invoice sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(15*time.Minute),
			gocron.NewTask(func() {
				if err := app.certificates.Sweep(ctx); err != nil {
					log.Error().Err(err).Msg("Certificate sweep failed")
				}
			}),
		)
		if err != nil {
			return err
		}

		_, err = scheduler.NewJob(
			gocron.DurationJob(5*time.Minute),
			gocron.NewTask(func() {
				app.certificates.HealthCheck(ctx)
			}),
		)
		if err != nil {
			return err
		}

		log.Info().Msg("Starting invoice and certificate schedulers")
		scheduler.Start()

		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
