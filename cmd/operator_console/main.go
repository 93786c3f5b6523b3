// Command operator_console runs the operator console core and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Name is used for log and recording file names.
const Name = "operator_console"

// Version is set at build time.
var Version = "dev"

var configDir string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   Name,
	Short: "Supervise an autonomous vehicle and adjudicate operator path proposals",
	Long: `operator_console runs the console core: a telemetry stream merged into the
hero vehicle state, the operator's path proposal, and the traffic simulation
around the hero. State is served over HTTP and recorded to the configured
storage backends.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", Name, Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configDir, "config", "c", ".", "Directory containing "+Name+".cfg.json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportPathCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(commandCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
