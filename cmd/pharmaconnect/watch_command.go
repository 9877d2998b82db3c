package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sreevaishnavirao/pharmaconnect-client/internal/events"
	"github.com/sreevaishnavirao/pharmaconnect-client/internal/storage"
)

// watchTopics maps the shared documents onto bus topics, the same routing a
// browser tab gets from storage events.
var watchTopics = map[string]string{
	storage.DocGuestCart:     events.TopicCartUpdated,
	storage.DocSubmissions:   events.TopicRxStoreUpdated,
	storage.DocNotifications: events.TopicRxStoreUpdated,
}

func newWatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream cart and prescription changes made by other processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			changes, cancelWatch, err := app.Store.Watch(ctx)
			if err != nil {
				return err
			}
			defer cancelWatch()

			go events.Forward(ctx, changes, app.Bus, watchTopics)

			cartEvents, cancelCart := app.Bus.Subscribe(ctx, events.TopicCartUpdated)
			defer cancelCart()
			rxEvents, cancelRx := app.Bus.Subscribe(ctx, events.TopicRxStoreUpdated)
			defer cancelRx()

			cmd.Println("watching for changes, ctrl-c to stop")
			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-cartEvents:
					cmd.Printf("%s  %s (%s)\n", event.Time.Format("15:04:05"), event.Topic, event.Key)
				case event := <-rxEvents:
					cmd.Printf("%s  %s (%s)\n", event.Time.Format("15:04:05"), event.Topic, event.Key)
				}
			}
		},
	}
}
