package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"cryptalert/internal/app"
)

var (
	showLimit  int
	showAsset  string
	showAlerts bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display archived quotes or recent alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:  showLimit,
			Asset:  showAsset,
			Alerts: showAlerts,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of rows to display")
	showCmd.Flags().StringVar(&showAsset, "asset", "btc", "Asset whose quotes are listed")
	showCmd.Flags().BoolVar(&showAlerts, "alerts", false, "List recent alerts instead of quotes")
}
