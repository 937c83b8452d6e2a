package cli

import (
	"fmt"

	"github.com/pratik-mahalle/bibleplan/pkg/client"
	"github.com/spf13/cobra"
)

func newEntitlementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "entitlement",
		Aliases: []string{"credits"},
		Short:   "Daily credits and paid tier",
	}

	cmd.AddCommand(newEntitlementShowCmd())
	cmd.AddCommand(newEntitlementConsumeCmd())
	cmd.AddCommand(newEntitlementRedeemCmd())
	cmd.AddCommand(newEntitlementHistoryCmd())

	return cmd
}

func newEntitlementShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show today's credits and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			ent, err := apiClient.Entitlement().Get(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, ent)
			}

			t := NewTable(out, "TIER", "CREDITS", "ALLOWANCE", "RESET", "EXPIRES")
			resetDate := ent.LastResetDate
			if resetDate == "" {
				resetDate = "-"
			}
			expires := "-"
			if ent.ProExpiresAt != nil {
				expires = formatTime(ent.ProExpiresAt)
			} else if ent.Tier == "paid" {
				expires = "never"
			}
			t.AddRow(ent.Tier, formatCredits(ent.DailyCreditsRemaining, ent.Unlimited),
				fmt.Sprint(ent.DailyAllowance), resetDate, expires)
			t.Render()
			return nil
		},
	}
}

func newEntitlementConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume <action-type>",
		Short: "Spend one credit for an action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiClient.Entitlement().Consume(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, res)
			}

			if !res.OK {
				fmt.Fprintln(out, "No credits left today. They refill at midnight UTC.")
				return nil
			}
			fmt.Fprintf(out, "Unlocked %s (%s credits left)\n", args[0], formatCredits(res.DailyCreditsRemaining, res.Unlimited))
			return nil
		},
	}
}

func newEntitlementRedeemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redeem <code>",
		Short: "Redeem a promotional code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := apiClient.Entitlement().Redeem(cmd.Context(), args[0])
			if apiErr, ok := client.AsAPIError(err); ok && apiErr.IsInvalidCode() {
				return fmt.Errorf("code %q is not valid", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, res)
			}

			if res.ProExpiresAt != nil {
				fmt.Fprintf(out, "Upgraded to %s until %s\n", res.Tier, formatTime(res.ProExpiresAt))
			} else {
				fmt.Fprintf(out, "Upgraded to %s\n", res.Tier)
			}
			return nil
		},
	}
}

func newEntitlementHistoryCmd() *cobra.Command {
	var page, pageSize int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent consume decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := apiClient.Entitlement().Events(cmd.Context(), &client.ListOptions{Page: page, PageSize: pageSize})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, events)
			}

			if len(events.Data) == 0 {
				fmt.Fprintln(out, "No credit events yet")
				return nil
			}

			t := NewTable(out, "TIME", "ACTION", "OUTCOME", "LEFT")
			for _, e := range events.Data {
				at := e.OccurredAt
				left := formatCredits(e.CreditsRemaining, e.Outcome == "unlimited")
				t.AddRow(formatTime(&at), e.ActionType, formatOutcome(e.Outcome), left)
			}
			t.Render()
			fmt.Fprintf(out, "\nPage %d of %d (%d events)\n", events.Page, events.TotalPages, events.TotalItems)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "events per page (max 100)")
	return cmd
}
