package cmd

import (
	"context"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goindexq/internal/dispatch"
	"github.com/dbsmedya/goindexq/internal/events"
)

var handlersEvent string

var handlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List the event handlers in dispatch order",
	Long: `Handlers lists every subscription on the event bus in the order handlers
run for an event. It does not contact the database.

Examples:
  goindexq handlers --config goindexq.yaml
  goindexq handlers --event record_garbage_check`,
	RunE: runHandlers,
}

func init() {
	handlersCmd.Flags().StringVarP(&handlersEvent, "event", "e", "",
		"Only list handlers of this event (record_updated, record_deleted, record_garbage_check)")
	rootCmd.AddCommand(handlersCmd)
}

func runHandlers(cmd *cobra.Command, args []string) error {
	var kind events.Kind
	if handlersEvent != "" {
		var err error
		if kind, err = events.ParseKind(handlersEvent); err != nil {
			return err
		}
	}

	a, err := newApp(context.Background(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	renderSubscriptions(cmd.OutOrStdout(), filterSubscriptions(a.bus.Subscriptions(), kind))
	return nil
}

// filterSubscriptions keeps subscriptions of kind; the zero Kind keeps all.
func filterSubscriptions(subs []dispatch.Subscription, kind events.Kind) []dispatch.Subscription {
	if kind == 0 {
		return subs
	}
	var filtered []dispatch.Subscription
	for _, sub := range subs {
		if sub.Kind == kind {
			filtered = append(filtered, sub)
		}
	}
	return filtered
}

func renderSubscriptions(w io.Writer, subs []dispatch.Subscription) {
	t := newTable("#", "EVENT", "HANDLER")
	for i, sub := range subs {
		t.addRow(strconv.Itoa(i+1), sub.Kind.String(), sub.Name)
	}
	t.render(w)
}
