package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the negotiation server",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := negoClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"status": status, "transport": transport})
		} else {
			fmt.Printf("Health: %s (%s)\n", status, transport)
		}

		if status != "ok" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}
