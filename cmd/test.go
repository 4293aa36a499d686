package cmd

import (
	"pdf-redactor/internal/redaction"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test TEXT",
	Short: "Apply the rules to a sample text",
	Long: `Apply the configured rules to TEXT and print the result, without
touching any PDF. Useful for checking patterns before a run.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRuleSet(cmd)
		if err != nil {
			return err
		}
		redactor, err := redaction.Compile(rs.Rules)
		if err != nil {
			return err
		}

		result, changed := redactor.Redact(args[0])
		cmd.Println(result)
		if changed {
			logger.Debug("Text replacements needed", "rules", redactor.Len())
		} else {
			logger.Debug("No text replacements needed", "rules", redactor.Len())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
