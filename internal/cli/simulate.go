package cli

import (
	"github.com/spf13/cobra"

	"cryptalert/internal/app"
)

var (
	simulateAsset   string
	simulateSamples string
)

var simulateCmd = &cobra.Command{
	Use:     "simulate-alert",
	Short:   "Feed sample values through the threshold check and deliver the alert",
	Example: "  cryptalert simulate-alert --asset btc --samples 1.0,1.0,1.0,1.5",
	RunE: func(cmd *cobra.Command, args []string) error {
		samples, err := app.ParseSamples(simulateSamples)
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), app.SimulateOptions{
			Asset:   simulateAsset,
			Samples: samples,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateAsset, "asset", "btc", "Asset to simulate")
	simulateCmd.Flags().StringVar(&simulateSamples, "samples", "", "Comma separated sample values, oldest first")
}
