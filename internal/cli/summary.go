package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the combined multi-cloud cost summary",
	Long:  `Fetch current-period spend from the configured providers and show the merged view.`,
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.Flags().StringP("scope", "s", "all", "Provider scope (aws, azure, gcp, all)")
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	scopeFlag, _ := cmd.Flags().GetString("scope")
	scope, err := model.ParseScope(scopeFlag)
	if err != nil {
		return err
	}

	eng, store, err := initEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	view, failures := eng.GetCombinedSummary(cmd.Context(), scope)

	fmt.Printf("=== Multi-Cloud Cost Summary (%s) ===\n\n", scope)
	fmt.Printf("Total Cost: %s %s\n", view.TotalCost.StringFixed(2), view.Currency)

	if len(view.PerProvider) > 0 {
		fmt.Printf("\nBy Provider:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  PROVIDER\tCOST\tSERVICES\tSTATUS\n")
		for _, id := range model.AllProviders() {
			pt, ok := view.PerProvider[id]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", id, pt.TotalCost.StringFixed(2), pt.ServiceCount, pt.Status)
		}
		w.Flush()
	}

	if len(view.CombinedServices) > 0 {
		fmt.Printf("\nBy Service:\n")
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  SERVICE\tCOST\tCONTRIBUTORS\n")
		for _, svc := range view.CombinedServices {
			fmt.Fprintf(w, "  %s\t%s\t%d\n", svc.CanonicalName, svc.TotalCost.StringFixed(2), len(svc.Contributors))
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
