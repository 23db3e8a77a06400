package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var rosterCmd = &cobra.Command{
	Use:     "roster",
	Short:   "Show connected participants and their liveness",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		stale, _ := cmd.Flags().GetDuration("stale")

		resp, err := httpClient.Roster(cmd.Context(), int(stale/time.Second))
		if err != nil {
			return fmt.Errorf("getting roster: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printRosterTable(os.Stdout, resp.Participants)
		fmt.Printf("\n%d connected, %d waiting, %d active sessions\n",
			resp.Connected, resp.Waiting, resp.ActiveSessions)
		return nil
	},
}

func init() {
	rosterCmd.Flags().Duration("stale", 5*time.Minute, "hide participants idle longer than this")
}
