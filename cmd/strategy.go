/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package cmd

import (
	"github.com/krobus00/donchian-service/internal/bootstrap"
	"github.com/spf13/cobra"
)

// strategyCmd represents the strategy command
var strategyCmd = &cobra.Command{
	Use:   "strategy",
	Short: "Run the donchian breakout strategy",
	Long: `Run the donchian breakout strategy worker.

The worker consumes the price stream, submits breakout entry orders through
the order lifecycle manager and walks outstanding orders with the market
until they fill.`,
	Run: bootstrap.StartDonchianStrategy,
}

func init() {
	rootCmd.AddCommand(strategyCmd)
}
