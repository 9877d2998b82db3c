package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/gateway"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
)

func newOrderCommand() *cobra.Command {
	orderCmd := &cobra.Command{
		Use:   "order",
		Short: "Place orders against the backend",
	}
	orderCmd.AddCommand(newOrderPlaceCommand(), newOrderAddressCommand())
	return orderCmd
}

func newOrderAddressCommand() *cobra.Command {
	var clear bool
	addressCmd := &cobra.Command{
		Use:   "address [json]",
		Short: "Save, show, or clear the checkout address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			switch {
			case clear:
				return app.Store.Delete(ctx, storage.DocCheckoutAddress)
			case len(args) == 1:
				if !json.Valid([]byte(args[0])) {
					return fmt.Errorf("address must be a JSON document")
				}
				return app.Store.Put(ctx, storage.DocCheckoutAddress, []byte(args[0]))
			default:
				raw, err := app.Store.Get(ctx, storage.DocCheckoutAddress)
				if errors.Is(err, storage.ErrNotFound) {
					cmd.Println("no checkout address saved")
					return nil
				}
				if err != nil {
					return err
				}
				cmd.Println(string(raw))
				return nil
			}
		},
	}
	addressCmd.Flags().BoolVar(&clear, "clear", false, "Delete the saved address")
	return addressCmd
}

func newOrderPlaceCommand() *cobra.Command {
	var (
		addressID int64
		pgName    string
		pgPayment string
	)
	placeCmd := &cobra.Command{
		Use:   "place <payment-method>",
		Short: "Submit the checkout for the current cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			record, err := app.Gateway.PlaceOrder(cmd.Context(), args[0], gateway.PaymentDetails{
				AddressID:   addressID,
				PGName:      pgName,
				PGPaymentID: pgPayment,
			})
			if err != nil {
				return err
			}

			// The order consumed the server cart; drop the local snapshot
			// and the saved checkout address with it.
			if err := app.Cart.Reset(cmd.Context()); err != nil {
				cmd.PrintErrf("warning: %v\n", err)
			}
			if err := app.Store.Delete(cmd.Context(), storage.DocCheckoutAddress); err != nil {
				cmd.PrintErrf("warning: %v\n", err)
			}

			var pretty map[string]any
			if err := json.Unmarshal(record, &pretty); err == nil {
				if orderID, ok := pretty["orderId"]; ok {
					cmd.Printf("order placed: %v\n", orderID)
					return nil
				}
			}
			cmd.Printf("order placed: %s\n", string(record))
			return nil
		},
	}
	placeCmd.Flags().Int64Var(&addressID, "address-id", 0, "Saved address identifier")
	placeCmd.Flags().StringVar(&pgName, "pg-name", "", "Payment gateway name")
	placeCmd.Flags().StringVar(&pgPayment, "pg-payment-id", "", "Payment gateway transaction id")
	return placeCmd
}
