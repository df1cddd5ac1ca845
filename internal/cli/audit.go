package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesloop/autopilot/internal/config"
	"github.com/salesloop/autopilot/internal/store"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the promotion/demotion audit timeline",
	}
	cmd.AddCommand(newAuditListCmd())
	return cmd
}

func newAuditListCmd() *cobra.Command {
	var orgID string
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events for a user, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || userID == "" {
				return fmt.Errorf("--org and --user are required")
			}
			home := config.MustHomeFrom(cmd.Context())
			st, err := store.Open(home)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			events, err := st.ListAuditEvents(cmd.Context(), orgID, userID, limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No audit events")
				return nil
			}
			for _, ev := range events {
				reason := ""
				if ev.TriggerReason != nil {
					reason = *ev.TriggerReason
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s -> %s\t%s\n",
					ev.CreatedAt.Format(time.RFC3339), ev.ActionType, ev.EventType,
					ev.FromTier, ev.ToTier, reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Organization ID")
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max events to return (default 200)")
	return cmd
}
