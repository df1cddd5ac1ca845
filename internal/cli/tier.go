package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/salesloop/autopilot/internal/config"
	"github.com/salesloop/autopilot/internal/store"
	"github.com/salesloop/autopilot/pkg/models"
)

func newTierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tier",
		Short: "Inspect and seed autonomy tier state",
	}
	cmd.AddCommand(newTierGetCmd())
	cmd.AddCommand(newTierSetCmd())
	cmd.AddCommand(newTierListCmd())
	return cmd
}

func newTierGetCmd() *cobra.Command {
	var userID string
	var actionType string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show tier state for a (user, action type) pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || actionType == "" {
				return fmt.Errorf("--user and --action are required")
			}
			home := config.MustHomeFrom(cmd.Context())
			st, err := store.Open(home)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ts, err := st.GetTierState(cmd.Context(), userID, actionType)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no tier state for user %q action %q", userID, actionType)
				}
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "user:                   %s\n", ts.UserID)
			_, _ = fmt.Fprintf(out, "org:                    %s\n", ts.OrgID)
			_, _ = fmt.Fprintf(out, "action:                 %s\n", ts.ActionType)
			_, _ = fmt.Fprintf(out, "tier:                   %s\n", ts.CurrentTier)
			if ts.CooldownUntil != nil {
				_, _ = fmt.Fprintf(out, "cooldown_until:         %s\n", ts.CooldownUntil.Format(time.RFC3339))
			} else {
				_, _ = fmt.Fprintf(out, "cooldown_until:         none\n")
			}
			_, _ = fmt.Fprintf(out, "extra_required_signals: %d\n", ts.ExtraRequiredSignals)
			_, _ = fmt.Fprintf(out, "promotion_eligible:     %t\n", ts.PromotionEligible)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&actionType, "action", "", "Action type slug (e.g. send-email)")
	return cmd
}

func newTierSetCmd() *cobra.Command {
	var (
		userID            string
		orgID             string
		actionType        string
		tier              string
		extraSignals      int
		promotionEligible bool
		cooldownUntil     string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Seed or overwrite tier state (operator escape hatch; the promotion path's write)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" || orgID == "" || actionType == "" {
				return fmt.Errorf("--user, --org, and --action are required")
			}
			if tier != models.TierManualApproval && tier != models.TierAutonomous {
				return fmt.Errorf("--tier must be %q or %q", models.TierManualApproval, models.TierAutonomous)
			}
			var cooldown *time.Time
			if cooldownUntil != "" {
				t, err := time.Parse(time.RFC3339, cooldownUntil)
				if err != nil {
					return fmt.Errorf("--cooldown-until must be RFC3339: %w", err)
				}
				cooldown = &t
			}
			home := config.MustHomeFrom(cmd.Context())
			st, err := store.Open(home)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ts := store.TierState{
				UserID:               userID,
				ActionType:           actionType,
				OrgID:                orgID,
				CurrentTier:          tier,
				CooldownUntil:        cooldown,
				ExtraRequiredSignals: extraSignals,
				PromotionEligible:    promotionEligible,
			}
			if err := st.PutTierState(cmd.Context(), ts); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Tier for user %q action %q set to %q\n", userID, actionType, tier)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User ID")
	cmd.Flags().StringVar(&orgID, "org", "", "Organization ID")
	cmd.Flags().StringVar(&actionType, "action", "", "Action type slug (e.g. send-email)")
	cmd.Flags().StringVar(&tier, "tier", models.TierManualApproval, "Tier: manual_approval or autonomous")
	cmd.Flags().IntVar(&extraSignals, "extra-signals", 0, "Extra required signals before the next promotion")
	cmd.Flags().BoolVar(&promotionEligible, "promotion-eligible", false, "Mark the pair promotion-eligible")
	cmd.Flags().StringVar(&cooldownUntil, "cooldown-until", "", "Cooldown end (RFC3339); empty clears it")
	return cmd
}

func newTierListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all pairs currently in the autonomous tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := store.Open(home)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			targets, err := st.ListAutonomousPairs(cmd.Context())
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No autonomous pairs")
				return nil
			}
			for _, t := range targets {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.UserID, t.OrgID, t.ActionType)
			}
			return nil
		},
	}
	return cmd
}
