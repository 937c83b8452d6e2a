package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show server health and today's credits",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			format := getOutputFormat()
			if format != "table" {
				summary := map[string]interface{}{}
				if health, err := apiClient.Health(ctx); err == nil {
					summary["server"] = health.Status
				} else {
					summary["server"] = "unreachable"
				}
				if ent, err := apiClient.Entitlement().Get(ctx); err == nil {
					summary["tier"] = ent.Tier
					summary["credits"] = formatCredits(ent.DailyCreditsRemaining, ent.Unlimited)
				}
				return printOutput(out, format, summary)
			}

			fmt.Fprintln(out, "Bible Plan")
			fmt.Fprintln(out, strings.Repeat("=", 40))

			health, err := apiClient.Health(ctx)
			if err != nil {
				fmt.Fprintf(out, "  Server:   (error: %v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "  Server:   %s (%s)\n", health.Status, health.Version)

			ent, err := apiClient.Entitlement().Get(ctx)
			if err != nil {
				fmt.Fprintf(out, "  Credits:  (error: %v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "  Tier:     %s\n", ent.Tier)
			if ent.Unlimited {
				fmt.Fprintln(out, "  Credits:  unlimited")
			} else {
				fmt.Fprintf(out, "  Credits:  %d of %d left today\n", ent.DailyCreditsRemaining, ent.DailyAllowance)
			}
			return nil
		},
	}
}
