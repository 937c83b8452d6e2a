package cli

import (
	"fmt"
	"strings"

	"github.com/pratik-mahalle/bibleplan/pkg/client"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the study companion a question (spends one credit)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			reply, err := apiClient.Chat().Reply(cmd.Context(), []client.ChatMessage{
				{Role: "user", Content: question},
			})
			if apiErr, ok := client.AsAPIError(err); ok && apiErr.IsNoCredits() {
				return fmt.Errorf("no credits left today")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format := getOutputFormat(); format != "table" {
				return printOutput(out, format, reply)
			}

			fmt.Fprintln(out, reply.Message.Content)
			fmt.Fprintf(out, "\n(%s credits left)\n", formatCredits(reply.DailyCreditsRemaining, reply.Unlimited))
			return nil
		},
	}
}
