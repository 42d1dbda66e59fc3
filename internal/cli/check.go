package cli

import (
	"github.com/spf13/cobra"

	"crossarb/internal/app"
)

var checkSymbols []string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch quotes once and print all cross-exchange spreads",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Check(cmd.Context(), app.CheckOptions{
			Symbols: checkSymbols,
		})
	},
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkSymbols, "symbol", nil, "Symbols to check (defaults to all configured)")
}
