package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/eventreg/internal/models"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load country currency reference data",
	Long:  `Load or refresh the country to currency reference table from a JSON file`,
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFile, "file", "countries.json", "Path to the country currency JSON file")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	app, err := bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		if err := app.databases.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database connections")
		}
	}()

	data, err := os.ReadFile(seedFile)
	if err != nil {
		return errors.Wrap(err, "failed to read seed file")
	}

	var rows []models.CountryCurrency
	if err := json.Unmarshal(data, &rows); err != nil {
		return errors.Wrap(err, "failed to parse seed file")
	}

	if err := app.countries.BulkUpsert(context.Background(), rows); err != nil {
		return err
	}

	log.Info().Int("rows", len(rows)).Str("file", seedFile).Msg("Country currency reference data loaded")
	return nil
}
