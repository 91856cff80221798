package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"market-news-alerts/internal/app"
)

var (
	simulateUser        string
	simulateCommodities []string
	simulateImpact      string
	simulateHeadline    string
	simulateOverride    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-event",
	Short: "模拟一条市场事件并触发评估",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateUser == "" {
			return errors.New("--user 必须指定")
		}
		if len(simulateCommodities) == 0 {
			return errors.New("--commodities 必须至少包含一个标的")
		}

		opts := app.SimulateOptions{
			UserID:      simulateUser,
			Commodities: simulateCommodities,
			Impact:      simulateImpact,
			Headline:    simulateHeadline,
			Override:    simulateOverride,
		}
		return getApp().SimulateEvent(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateUser, "user", "", "User to evaluate the event for")
	simulateCmd.Flags().StringSliceVar(&simulateCommodities, "commodities", nil, "Commodity tags on the event")
	simulateCmd.Flags().StringVar(&simulateImpact, "impact", "high", "Impact level (low, medium, high)")
	simulateCmd.Flags().StringVar(&simulateHeadline, "headline", "simulated market event", "Event headline")
	simulateCmd.Flags().BoolVar(&simulateOverride, "override", false, "Mark the event as priority override")
}
