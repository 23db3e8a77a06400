package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nego/internal/client"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Short:   "Inspect stored and live sessions",
	GroupID: "sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		completed, _ := cmd.Flags().GetBool("completed")
		incomplete, _ := cmd.Flags().GetBool("incomplete")
		worker, _ := cmd.Flags().GetString("worker")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		if completed && incomplete {
			return fmt.Errorf("--completed and --incomplete are mutually exclusive")
		}
		req := &client.ListSessionsRequest{WorkerID: worker, Limit: limit, Offset: offset}
		if completed || incomplete {
			req.Completed = &completed
		}

		resp, err := negoClient.ListSessions(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("listing sessions: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printSessionListTable(os.Stdout, resp.Sessions, resp.Total)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <tag>",
	Short: "Show one session with its participants and transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := negoClient.GetSession(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("getting session %s: %w", args[0], err)
		}
		if jsonOutput {
			printJSON(rec)
			return nil
		}
		printSessionTable(os.Stdout, rec)
		return nil
	},
}

var sessionsLiveCmd = &cobra.Command{
	Use:   "live",
	Short: "List sessions still in progress and the lobby queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := httpClient.LiveSessions(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing live sessions: %w", err)
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printLiveTable(os.Stdout, resp.Sessions, resp.Waiting, time.Now())
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().Bool("completed", false, "only completed sessions")
	sessionsListCmd.Flags().Bool("incomplete", false, "only incomplete sessions")
	sessionsListCmd.Flags().String("worker", "", "only sessions with this worker")
	sessionsListCmd.Flags().Int("limit", 20, "maximum sessions to return")
	sessionsListCmd.Flags().Int("offset", 0, "sessions to skip")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsLiveCmd)
}
