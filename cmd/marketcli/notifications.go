package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"servicemarket/internal/domain"
	"servicemarket/internal/events"
	"servicemarket/internal/syncer"
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif", "n"},
	Short:   "Read and act on notifications",
}

var notificationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show unread counts and recent notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, e *env) error {
			snap, err := syncOnce(ctx, e)
			if err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read <notification-id>",
	Short: "Mark one notification read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEnv(func(ctx context.Context, e *env) error {
			if _, err := e.actor(); err != nil {
				return err
			}
			return e.syncer.MarkRead(ctx, id)
		})
	},
}

var notificationsReadAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Mark every notification read",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, e *env) error {
			if _, err := e.actor(); err != nil {
				return err
			}
			return e.syncer.MarkAllRead(ctx)
		})
	},
}

var notificationsActCmd = &cobra.Command{
	Use:       "act <notification-id> <accept|decline>",
	Short:     "Accept or decline the order a notification asks about",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{string(domain.ActionAccept), string(domain.ActionDecline)},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		action := domain.NotificationAction(args[1])
		return withEnv(func(ctx context.Context, e *env) error {
			if _, err := syncOnce(ctx, e); err != nil {
				return err
			}
			if err := e.syncer.ActOnNotification(ctx, id, action); err != nil {
				return err
			}
			fmt.Printf("Done: %s\n", action)
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll notifications and print changes until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		return withEnv(func(ctx context.Context, e *env) error {
			if _, err := e.actor(); err != nil {
				return err
			}
			if interval <= 0 {
				interval = e.cfg.PollInterval
			}

			sub := e.bus.Subscribe(events.EventNotificationsUpdated)
			defer e.bus.Unsubscribe(sub)

			e.syncer.Start(interval)
			defer e.syncer.Stop()

			var last syncer.Snapshot
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-e.syncer.Done():
					fmt.Println("-- polling stopped (signed out)")
					return nil
				case ev, ok := <-sub:
					if !ok {
						return nil
					}
					snap, ok := ev.Payload.(syncer.Snapshot)
					if !ok || sameCounts(last, snap) {
						continue
					}
					last = snap
					printSnapshot(snap)
				}
			}
		})
	},
}

// syncOnce runs a single poll tick and returns its snapshot.
func syncOnce(ctx context.Context, e *env) (syncer.Snapshot, error) {
	if _, err := e.actor(); err != nil {
		return syncer.Snapshot{}, err
	}
	before := e.syncer.Snapshot().LastSync

	e.syncer.Start(time.Hour)
	defer e.syncer.Stop()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(e.cfg.RequestTimeout * 2)
	for {
		select {
		case <-ctx.Done():
			return syncer.Snapshot{}, ctx.Err()
		case <-deadline:
			return syncer.Snapshot{}, fmt.Errorf("%w: no answer from the server", domain.ErrTransportFailure)
		case <-ticker.C:
			if snap := e.syncer.Snapshot(); snap.LastSync.After(before) {
				return snap, nil
			}
		}
	}
}

func sameCounts(a, b syncer.Snapshot) bool {
	if a.UnreadNotifications != b.UnreadNotifications || a.UnreadMessages != b.UnreadMessages {
		return false
	}
	if len(a.Notifications) != len(b.Notifications) {
		return false
	}
	for i := range a.Notifications {
		x, y := a.Notifications[i], b.Notifications[i]
		if x.ID != y.ID || x.Read != y.Read || x.ActionTaken != y.ActionTaken {
			return false
		}
	}
	return true
}

func printSnapshot(s syncer.Snapshot) {
	fmt.Printf("Unread: %d notifications, %d messages\n", s.UnreadNotifications, s.UnreadMessages)
	for _, n := range s.Notifications {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		line := fmt.Sprintf("%s %-5d %-8s %s", mark, n.ID, n.Level, n.Message)
		switch {
		case n.ActionTaken:
			line += fmt.Sprintf(" [%s]", n.TakenAction)
		case n.RequiresAction:
			line += " [accept/decline]"
		}
		fmt.Println(line)
	}
}

func init() {
	watchCmd.Flags().Duration("interval", 0, "Poll interval (default POLL_INTERVAL)")

	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsReadCmd)
	notificationsCmd.AddCommand(notificationsReadAllCmd)
	notificationsCmd.AddCommand(notificationsActCmd)
}
