package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newNotificationsCommand() *cobra.Command {
	notificationsCmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"inbox"},
		Short:   "Manage the current user's notification inbox",
	}
	notificationsCmd.AddCommand(
		newNotificationsListCommand(),
		newNotificationsReadCommand(),
		newNotificationsClearCommand(),
	)
	return notificationsCmd
}

func newNotificationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			userKey, err := app.currentUserKey(cmd.Context())
			if err != nil {
				return err
			}
			notifications, err := app.Rx.Notifications(cmd.Context(), userKey)
			if err != nil {
				return err
			}
			unread, err := app.Rx.UnreadCount(cmd.Context(), userKey)
			if err != nil {
				return err
			}

			for _, notification := range notifications {
				marker := " "
				if !notification.Read {
					marker = "*"
				}
				created := time.UnixMilli(notification.CreatedAt).Format(time.RFC3339)
				cmd.Printf("%s %s  %s  %s\n", marker, notification.ID, created, notification.Title)
				if notification.Message != "" {
					cmd.Printf("    %s\n", notification.Message)
				}
			}
			cmd.Printf("%d unread\n", unread)
			return nil
		},
	}
}

func newNotificationsReadCommand() *cobra.Command {
	var all bool
	readCmd := &cobra.Command{
		Use:   "read [notification-id]",
		Short: "Mark a notification, or the whole inbox, as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			userKey, err := app.currentUserKey(cmd.Context())
			if err != nil {
				return err
			}
			if all || len(args) == 0 {
				return app.Rx.MarkAllRead(cmd.Context(), userKey)
			}
			return app.Rx.MarkRead(cmd.Context(), userKey, args[0])
		},
	}
	readCmd.Flags().BoolVar(&all, "all", false, "Mark every notification as read")
	return readCmd
}

func newNotificationsClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every notification in the inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			userKey, err := app.currentUserKey(cmd.Context())
			if err != nil {
				return err
			}
			return app.Rx.ClearNotifications(cmd.Context(), userKey)
		},
	}
}
