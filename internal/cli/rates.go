package cli

import (
	"github.com/spf13/cobra"

	"cryptalert/internal/app"
)

var ratesFromRedis bool

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Fetch current rates once and print them as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Rates(cmd.Context(), app.RatesOptions{FromMirror: ratesFromRedis})
	},
}

func init() {
	ratesCmd.Flags().BoolVar(&ratesFromRedis, "from-redis", false, "Read the last snapshot mirrored to redis instead of the source")
}
