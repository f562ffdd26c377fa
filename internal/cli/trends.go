package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

var trendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Show daily cost trends and statistics",
	Long:  `Build a daily cost series over a date range and compute trend statistics.`,
	RunE:  runTrends,
}

func init() {
	rootCmd.AddCommand(trendsCmd)
	trendsCmd.Flags().StringP("scope", "s", "all", "Provider scope (aws, azure, gcp, all)")
	trendsCmd.Flags().Int("days", 30, "Number of days to analyze")
	trendsCmd.Flags().Bool("series", false, "Print the full daily series")
}

func runTrends(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scopeFlag, _ := cmd.Flags().GetString("scope")
	scope, err := model.ParseScope(scopeFlag)
	if err != nil {
		return err
	}
	days, _ := cmd.Flags().GetInt("days")
	showSeries, _ := cmd.Flags().GetBool("series")

	eng, store, err := initEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	period := model.LastNDays(time.Now(), days)
	series, stats, failures := eng.GetTrendStats(cmd.Context(), scope, period.Start, period.End)

	fmt.Printf("=== Cost Trends (%s, last %d days) ===\n\n", scope, days)
	fmt.Printf("Average Daily: %s\n", stats.AverageDaily.StringFixed(2))
	fmt.Printf("Max Daily:     %s (%s)\n", stats.MaxDaily.StringFixed(2), stats.HighestDay.Date.Format("2006-01-02"))
	fmt.Printf("Min Daily:     %s (%s)\n", stats.MinDaily.StringFixed(2), stats.LowestDay.Date.Format("2006-01-02"))
	fmt.Printf("Growth Rate:   %.1f%%\n", stats.GrowthRate*100)
	fmt.Printf("Volatility:    %.3f\n", stats.Volatility)

	if showSeries {
		fmt.Printf("\nDaily Series:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  DATE\tCOST\n")
		for _, p := range series {
			fmt.Fprintf(w, "  %s\t%s\n", p.Date.Format("2006-01-02"), p.Cost.StringFixed(2))
		}
		w.Flush()
	}

	if len(failures) > 0 {
		fmt.Printf("\nPartial Failures:\n")
		for _, f := range failures {
			fmt.Printf("  %s: %s\n", f.Provider, f.Kind)
		}
	}

	return nil
}
