package cli

import (
	"github.com/spf13/cobra"

	"crossarb/internal/app"
)

var (
	showLimit      int
	showExecutions bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent alerts or execution attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Limit:      showLimit,
			Executions: showExecutions,
		})
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of records to show")
	showCmd.Flags().BoolVar(&showExecutions, "executions", false, "Show execution attempts instead of alerts")
}
