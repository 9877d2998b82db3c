package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/cart"
)

func newCartCommand() *cobra.Command {
	cartCmd := &cobra.Command{
		Use:   "cart",
		Short: "Inspect and mutate the shopping cart",
	}

	cartCmd.AddCommand(
		newCartShowCommand(),
		newCartAddCommand(),
		newCartIncCommand(),
		newCartDecCommand(),
		newCartRemoveCommand(),
		newCartMergeCommand(),
		newCartClearCommand(),
	)

	return cartCmd
}

func newCartShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the current cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			loaded, err := app.Cart.Load(cmd.Context())
			if err != nil {
				// The cart still renders after a failed refresh; show what
				// settled along with the failure.
				printCart(cmd, loaded)
				return err
			}
			printCart(cmd, loaded)
			return nil
		},
	}
}

func newCartAddCommand() *cobra.Command {
	var (
		productName  string
		unitPrice    float64
		specialPrice float64
		imageURL     string
	)
	addCmd := &cobra.Command{
		Use:   "add <product-id> [quantity]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			quantity := int64(1)
			if len(args) == 2 {
				quantity, err = strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			product := cart.Product{
				ProductID:   productID,
				ProductName: productName,
				ImageURL:    imageURL,
				UnitPrice:   unitPrice,
			}
			if cmd.Flags().Changed("special-price") {
				product.SpecialPrice = &specialPrice
			}

			if _, err := app.Cart.Load(cmd.Context()); err != nil {
				cmd.PrintErrf("warning: %v\n", err)
			}
			outcome, err := app.Cart.AddLine(cmd.Context(), product, quantity)
			if err != nil {
				return err
			}
			printOutcome(cmd, outcome)
			return nil
		},
	}
	addCmd.Flags().StringVar(&productName, "name", "", "Product name for the local snapshot")
	addCmd.Flags().Float64Var(&unitPrice, "price", 0, "Unit price for the local snapshot")
	addCmd.Flags().Float64Var(&specialPrice, "special-price", 0, "Discounted unit price, when offered")
	addCmd.Flags().StringVar(&imageURL, "image", "", "Product image URL")
	return addCmd
}

func newCartIncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inc <product-id>",
		Short: "Raise a line's quantity by one",
		Args:  cobra.ExactArgs(1),
		RunE:  runCartAdjust(true),
	}
}

func newCartDecCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dec <product-id>",
		Short: "Lower a line's quantity by one (never below one)",
		Args:  cobra.ExactArgs(1),
		RunE:  runCartAdjust(false),
	}
}

func runCartAdjust(increase bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		productID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid product id %q", args[0])
		}

		app, err := newApplication()
		if err != nil {
			return err
		}
		defer app.Close()

		if _, err := app.Cart.Load(cmd.Context()); err != nil {
			cmd.PrintErrf("warning: %v\n", err)
		}
		var outcome cart.Outcome
		if increase {
			outcome, err = app.Cart.IncreaseLine(cmd.Context(), productID)
		} else {
			outcome, err = app.Cart.DecreaseLine(cmd.Context(), productID)
		}
		if err != nil {
			return err
		}
		printOutcome(cmd, outcome)
		return nil
	}
}

func newCartRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product's line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.Cart.Load(cmd.Context()); err != nil {
				cmd.PrintErrf("warning: %v\n", err)
			}
			outcome, err := app.Cart.RemoveLine(cmd.Context(), productID)
			if err != nil {
				return err
			}
			printOutcome(cmd, outcome)
			return nil
		},
	}
}

func newCartMergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Push the guest cart to the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			merged, err := app.Cart.MergeGuestCart(cmd.Context())
			if err != nil {
				printCart(cmd, merged)
				return err
			}
			printCart(cmd, merged)
			return nil
		},
	}
}

func newCartClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Empty the cart and drop the cached snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Cart.Reset(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("cart cleared")
			return nil
		},
	}
}

func printOutcome(cmd *cobra.Command, outcome cart.Outcome) {
	if outcome.Degraded {
		cmd.PrintErrf("warning: %s\n", outcome.Warning)
	}
	printCart(cmd, outcome.Cart)
}

func printCart(cmd *cobra.Command, current cart.Cart) {
	if current.IsEmpty() {
		cmd.Println("cart is empty")
		return
	}
	for _, line := range current.Lines {
		name := line.ProductName
		if name == "" {
			name = fmt.Sprintf("product %d", line.ProductID)
		}
		cmd.Printf("%6d  %-32s x%-3d  %8.2f\n", line.ProductID, name, line.Quantity, line.LineTotal())
	}
	cmd.Printf("total: %.2f\n", current.TotalPrice)
}
