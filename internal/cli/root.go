package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"
)

var (
	configPath string
	nodeID     int64
	workers    int
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "gymcore",
		Short: "gymcore settlement backend",
		Long: `gymcore runs one deployable per subcommand.

  payments    webhook intake, checkout and manual settlement
  membership  membership saga consumer and join/ban endpoints
  inventory   sale settlement consumer and POS endpoints
  analytics   settlement counters and the KPI endpoint
  redrive     republish the settlement event of a completed payment`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().Int64Var(&nodeID, "node-id", 1, "Snowflake node id for generated references (0-1023)")
}

// Execute runs the root command
func Execute() error {
	registerCommands()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

var registerOnce sync.Once

// registerCommands adds the subcommands once, after every init has run.
func registerCommands() {
	registerOnce.Do(func() {
		rootCmd.AddCommand(paymentsCmd, membershipCmd, inventoryCmd, analyticsCmd, redriveCmd)
	})
}

func addWorkersFlag(cmd *cobra.Command) {
	cmd.Flags().IntVar(&workers, "workers", 1, "Consumer workers per queue")
}
