package cli

import (
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Execute one price update run and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scrape(cmd.Context())
	},
}
