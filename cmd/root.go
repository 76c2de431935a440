package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "eventreg",
	Short: "Batch registration, payment and settlement service",
	Long: `A service that accepts bulk student registrations from schools,
prices them with volume discounts, drives payments through online and
offline channels and settles batches with invoices and certificates.`,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			log.Error().Err(err).Msg("Failed to display help")
		}
	},
}

// Execute executes the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize()
}
