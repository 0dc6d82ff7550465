package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Run demo workers under a restart-budgeted supervisor",
	Long: `supervise starts a supervisor over a set of demo workers and restarts them according to
their restart policy, within the configured restart budget.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (SUPERVISE_* env vars override it)")
}
