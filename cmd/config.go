package cmd

import (
	"pdf-redactor/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = settings.ConfigPath
		}
		if path != "" {
			cmd.Printf("Rules document: %s\n", path)
		} else {
			cmd.Println("Rules document: (not set)")
		}
		cmd.Printf("Log level: %s\n", settings.LogLevel)
		cmd.Printf("Workers: %d\n", settings.Workers)
		if def, err := config.DefaultRulesPath(); err == nil {
			cmd.Printf("Default rules location: %s\n", def)
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init PATH",
	Short: "Write a sample rules document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveRules(args[0], config.SampleRuleSet()); err != nil {
			return err
		}
		cmd.Printf("Sample rules written to: %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
