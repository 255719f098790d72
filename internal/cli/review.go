package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/bazaar/internal/market"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <user-id>",
		Short: "Rate another user",
		Args:  cobra.ExactArgs(1),
		RunE:  withRuntime(runReview),
	}
	cmd.Flags().Int("rating", 0, "rating from 1 to 5")
	cmd.Flags().String("comment", "", "optional comment")
	return cmd
}

func runReview(cmd *cobra.Command, args []string, rt *Runtime) error {
	session, err := rt.RequireSession(cmd.Context())
	if err != nil {
		return err
	}
	rating, _ := cmd.Flags().GetInt("rating")
	comment, _ := cmd.Flags().GetString("comment")

	review := market.Review{Reviewee: args[0], Rating: rating, Comment: comment}
	if err := rt.Client.CreateReview(cmd.Context(), review, session.Token); err != nil {
		return exitFor(err, "review")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Review submitted")
	return nil
}
