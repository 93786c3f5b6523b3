package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roadops/operator-console/internal/api"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a running console",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := api.NewClient(serverURL)
		if err := c.Healthcheck(); err != nil {
			return err
		}
		st, err := c.Status()
		if err != nil {
			return err
		}
		return printJSON(cmd, st)
	},
}

var commandCmd = &cobra.Command{
	Use:   "command <COMMAND> [args...]",
	Short: "Send an operator command to a running console",
	Example: `  operator_console command :PATH:ADD: 1.75 0.1 8
  operator_console command :PATH:RESOLVE: accepted
  operator_console command :LAYER:TRAFFIC: false`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api.NewClient(serverURL).Command(args[0], args[1:]...)
		if err != nil {
			return err
		}
		if len(res) == 0 || string(res) == "null" {
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}
		return printJSON(cmd, res)
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, commandCmd} {
		c.Flags().StringVarP(&serverURL, "url", "u", "http://localhost:8080", "Console API base URL")
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
