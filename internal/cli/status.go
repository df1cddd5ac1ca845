package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/salesloop/autopilot/internal/config"
	"github.com/salesloop/autopilot/internal/daemon"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Autopilot daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Autopilot not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Autopilot running (pid %d, addr %s)\n", st.PID, st.Addr)
			return nil
		},
	}
	return cmd
}
