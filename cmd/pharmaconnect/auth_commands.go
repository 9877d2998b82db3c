package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/session"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
)

func newLoginCommand() *cobra.Command {
	var password string
	loginCmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and merge the guest cart into the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				return fmt.Errorf("--password is required")
			}

			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			raw, err := app.Gateway.SignIn(cmd.Context(), args[0], password)
			if err != nil {
				return fmt.Errorf("sign in failed: %w", err)
			}

			var envelope session.Envelope
			if err := json.Unmarshal(raw, &envelope); err != nil {
				return fmt.Errorf("unreadable sign in response: %w", err)
			}
			if envelope.BearerToken() == "" {
				return fmt.Errorf("sign in response carried no usable token")
			}
			if err := app.Sessions.Save(cmd.Context(), envelope); err != nil {
				return err
			}

			userKey := session.UserKey(envelope.User)
			cmd.Printf("signed in as %s\n", userKey)

			merged, err := app.Cart.MergeGuestCart(cmd.Context())
			if err != nil {
				cmd.PrintErrf("warning: guest cart merge incomplete: %v\n", err)
			}
			printCart(cmd, merged)
			return nil
		},
	}
	loginCmd.Flags().StringVar(&password, "password", "", "Account password")
	return loginCmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear local session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			// Best effort; the local session is dropped either way.
			if err := app.Gateway.SignOut(cmd.Context()); err != nil {
				app.Logger.Warn("backend sign out failed", zap.Error(err))
			}
			if err := app.Sessions.Clear(cmd.Context()); err != nil {
				return err
			}
			if err := app.Cart.Reset(cmd.Context()); err != nil {
				return err
			}
			if err := app.Store.Delete(cmd.Context(), storage.DocCheckoutAddress); err != nil {
				app.Logger.Warn("failed to clear checkout address", zap.Error(err))
			}
			cmd.Println("signed out")
			return nil
		},
	}
}

func newWhoAmICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the current session identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.Sessions.CurrentUser(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Println(session.UserKey(user))
			return nil
		},
	}
}
