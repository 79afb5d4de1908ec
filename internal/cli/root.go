package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Relationship suggestions and notification scheduling",
	Long:  "Tether decides who to reach out to, when to nudge you about it, and learns which kinds of contact actually help.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(dismissCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(measureCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(reciprocityCmd)
}
