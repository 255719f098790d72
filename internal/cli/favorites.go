package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/bazaar/internal/logging"
	"github.com/tOgg1/bazaar/internal/market"
)

func newFavCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fav",
		Aliases: []string{"favorites"},
		Short:   "Manage locally saved favorites",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List favorites in the order they were added",
			Args:  cobra.NoArgs,
			RunE:  withRuntime(runFavList),
		},
		&cobra.Command{
			Use:   "toggle <product-id>",
			Short: "Add or remove a favorite",
			Args:  cobra.ExactArgs(1),
			RunE:  withRuntime(runFavToggle),
		},
		&cobra.Command{
			Use:   "check",
			Short: "Report whether a favorite was added since the notice was cleared",
			Args:  cobra.NoArgs,
			RunE:  withRuntime(runFavCheck),
		},
		&cobra.Command{
			Use:   "clear-notice",
			Short: "Clear the new-favorite notice",
			Args:  cobra.NoArgs,
			RunE: withRuntime(func(cmd *cobra.Command, _ []string, rt *Runtime) error {
				rt.Favorites.Load(cmd.Context())
				rt.Favorites.ClearNewFavoriteNotification(cmd.Context())
				return nil
			}),
		},
	)
	return cmd
}

func runFavList(cmd *cobra.Command, _ []string, rt *Runtime) error {
	items := rt.Favorites.Load(cmd.Context())
	if rt.JSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No favorites")
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, p := range items {
		rows = append(rows, []string{p.ID, truncate(p.Name, previewWidth), formatPrice(p.Price)})
	}
	return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME", "PRICE"}, rows)
}

func runFavToggle(cmd *cobra.Command, args []string, rt *Runtime) error {
	ctx := cmd.Context()
	rt.Favorites.Load(ctx)

	productID := args[0]
	product := market.ProductRef{ID: productID}
	if !rt.Favorites.IsFavorite(productID) {
		// Snapshot the listing so the favorite still renders if it changes later.
		fetched, err := rt.Client.Product(ctx, productID)
		switch {
		case err == nil:
			product = fetched
		case errors.Is(err, market.ErrNetwork):
			logger := logging.Component("cli")
			logging.Err(logger.Warn(), err).Str("product_id", productID).Msg("saving favorite without product details")
		default:
			return exitFor(err, "fetch product")
		}
	}

	added, err := rt.Favorites.Toggle(ctx, product)
	state := "removed"
	if added {
		state = "added"
	}
	if rt.JSON {
		if encErr := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"product": product.ID, "favorite": added}); encErr != nil {
			return encErr
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", displayName(product.ID, product.Name), state)
	}
	if err != nil {
		return Exitf(ExitCodeFailure, "favorite %s in this session but not saved: %v", state, err)
	}
	return nil
}

func runFavCheck(cmd *cobra.Command, _ []string, rt *Runtime) error {
	rt.Favorites.Load(cmd.Context())
	hasNew := rt.Favorites.HasNewFavorite()
	if rt.JSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]bool{"hasNewFavorite": hasNew})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "new favorite: %s\n", formatYesNo(hasNew))
	return nil
}
