package cmd

import (
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect redaction rules",
	Long: `Inspect the redaction rules that a run would apply.

Rules come from the rules document given with --config (or the
PDF_REDACTOR_CONFIG environment variable, or ~/.config/pdf-redactor/rules.json
when it exists), followed by the --find/--replace rule.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules in the order they are applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRuleSet(cmd)
		if err != nil {
			return err
		}

		if len(rs.Rules) == 0 {
			cmd.Println("No redaction rules configured.")
			cmd.Println("\nCreate a rules document with: pdf-redactor config init rules.json")
			return nil
		}

		cmd.Printf("Redaction rules (%d):\n\n", len(rs.Rules))
		for i, rule := range rs.Rules {
			cmd.Printf("%d. %s\n", i+1, rule.Mode())
			for _, pattern := range rule.Patterns {
				cmd.Printf("   Find:        %q\n", pattern)
			}
			cmd.Printf("   Replacement: %q\n\n", rule.Replacement)
		}
		cmd.Printf("Compression: preserve=%t level=%d\n", rs.Compression.Preserve, rs.Compression.Level)
		return nil
	},
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}
