package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/yapay-ai/cloudcost-sentinel/pkg/model"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE:  runRulesList,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert rule",
	RunE:  runRulesAdd,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <rule-id>",
	Short: "Delete an alert rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDelete,
}

var rulesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent alert triggers",
	RunE:  runRulesHistory,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesDeleteCmd, rulesHistoryCmd)

	rulesAddCmd.Flags().StringP("type", "t", "budget_threshold", "Rule type (budget_threshold, spike_detection, daily_summary, weekly_summary)")
	rulesAddCmd.Flags().StringP("scope", "s", "all", "Provider scope (aws, azure, gcp, all)")
	rulesAddCmd.Flags().String("threshold", "0", "Budget threshold value")
	rulesAddCmd.Flags().Int("threshold-pct", model.DefaultSpikeThresholdPct, "Spike threshold percentage")
	rulesAddCmd.Flags().String("owner", "default", "Owner ID notified on trigger")

	rulesHistoryCmd.Flags().String("rule", "", "Filter by rule ID")
	rulesHistoryCmd.Flags().Int("limit", 20, "Maximum entries to show")
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.ListRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if len(rules) == 0 {
		fmt.Println("No alert rules configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTYPE\tSCOPE\tTHRESHOLD\tENABLED\tLAST TRIGGERED\n")
	for _, r := range rules {
		threshold := r.ThresholdValue.StringFixed(2)
		if r.Type == model.AlertSpikeDetection {
			threshold = fmt.Sprintf("%d%%", r.ThresholdPct)
		}
		last := "never"
		if r.LastTriggeredAt != nil {
			last = r.LastTriggeredAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.Type, r.Scope, threshold, r.Enabled, last)
	}
	return w.Flush()
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	typeFlag, _ := cmd.Flags().GetString("type")
	scopeFlag, _ := cmd.Flags().GetString("scope")
	thresholdFlag, _ := cmd.Flags().GetString("threshold")
	thresholdPct, _ := cmd.Flags().GetInt("threshold-pct")
	owner, _ := cmd.Flags().GetString("owner")

	scope, err := model.ParseScope(scopeFlag)
	if err != nil {
		return err
	}
	threshold, err := decimal.NewFromString(thresholdFlag)
	if err != nil {
		return fmt.Errorf("parse threshold: %w", err)
	}

	rule := &model.AlertRule{
		OwnerID:        owner,
		Type:           model.AlertType(typeFlag),
		Scope:          scope,
		ThresholdValue: threshold,
		ThresholdPct:   thresholdPct,
		Enabled:        true,
	}
	if err := rule.Validate(); err != nil {
		return err
	}

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateRule(cmd.Context(), rule); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	fmt.Printf("Created rule %s (%s, scope %s)\n", rule.ID, rule.Type, rule.Scope)
	return nil
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteRule(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	fmt.Printf("Deleted rule %s\n", args[0])
	return nil
}

func runRulesHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ruleID, _ := cmd.Flags().GetString("rule")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := initStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.ListHistory(cmd.Context(), ruleID, limit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No alert history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "TRIGGERED\tRULE\tPROVIDER\tCURRENT\tCOMPARISON\tMESSAGE\n")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.TriggeredAt.Format("2006-01-02 15:04"),
			e.RuleID, e.Provider,
			e.CurrentValue.StringFixed(2), e.ComparisonValue.StringFixed(2),
			e.Message,
		)
	}
	return w.Flush()
}
