package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one alert evaluation pass now",
	Long:  `Evaluate all enabled alert rules against current spend and dispatch any triggered notifications.`,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, store, err := initEngine(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := eng.RunEvaluationPass(cmd.Context())
	if err != nil {
		return fmt.Errorf("evaluation pass: %w", err)
	}

	fmt.Printf("Evaluated: %d\n", result.Evaluated)
	fmt.Printf("Triggered: %d\n", result.Triggered)
	fmt.Printf("Skipped (cooldown): %d\n", result.SkippedCooldown)
	fmt.Printf("Skipped (invalid):  %d\n", result.SkippedInvalid)
	fmt.Printf("Failed: %d\n", result.Failed)
	return nil
}
