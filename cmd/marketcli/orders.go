package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"servicemarket/internal/domain"
	"servicemarket/internal/orders"
)

var ordersCmd = &cobra.Command{
	Use:     "orders",
	Aliases: []string{"order"},
	Short:   "List and act on orders",
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the orders visible to you",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, e *env) error {
			if _, err := e.actor(); err != nil {
				return err
			}
			list, err := e.orders.List(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("No orders")
				return nil
			}
			for _, o := range list {
				printOrderLine(o)
			}
			return nil
		})
	},
}

var ordersShowCmd = &cobra.Command{
	Use:   "show <order-id>",
	Short: "Show one order",
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
			o, err := e.orders.Refresh(ctx, id)
			if err != nil {
				return err
			}
			printOrder(o)
			return nil
		})
	},
}

var ordersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Place an order for a service",
	RunE: func(cmd *cobra.Command, args []string) error {
		serviceID, _ := cmd.Flags().GetInt64("service")
		description, _ := cmd.Flags().GetString("description")
		price, _ := cmd.Flags().GetFloat64("price")
		at, _ := cmd.Flags().GetString("at")
		duration, _ := cmd.Flags().GetDuration("duration")
		address, _ := cmd.Flags().GetString("address")

		scheduled, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at must be RFC3339, e.g. 2026-10-20T09:00:00Z: %w", err)
		}
		draft := domain.OrderDraft{
			Description:   description,
			OfferedPrice:  price,
			ScheduledTime: scheduled,
			DeliveryTime:  scheduled.Add(duration),
			ServiceID:     serviceID,
		}
		if address != "" {
			draft.Location = &domain.Location{Address: address}
		}

		return withEnv(func(ctx context.Context, e *env) error {
			actor, err := e.actor()
			if err != nil {
				return err
			}
			o, err := e.orders.Create(ctx, draft, actor)
			if err != nil {
				return err
			}
			fmt.Printf("Created order #%d\n", o.ID)
			return nil
		})
	},
}

var ordersReorderCmd = &cobra.Command{
	Use:   "reorder <order-id>",
	Short: "Place a new order copied from a completed or declined one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withEnv(func(ctx context.Context, e *env) error {
			actor, err := e.actor()
			if err != nil {
				return err
			}
			o, err := e.orders.Reorder(ctx, id, actor)
			if err != nil {
				return err
			}
			fmt.Printf("Created order #%d scheduled %s\n", o.ID, o.ScheduledTime.Local().Format(time.RFC1123))
			return nil
		})
	},
}

// transitionCmd builds one command per lifecycle action.
func transitionCmd(action orders.Action, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(action) + " <order-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var reason string
			if action == orders.ActionDecline {
				reason, _ = cmd.Flags().GetString("reason")
			}
			return withEnv(func(ctx context.Context, e *env) error {
				actor, err := e.actor()
				if err != nil {
					return err
				}
				o, err := e.orders.Do(ctx, id, action, actor, reason)
				if err != nil {
					return err
				}
				fmt.Printf("Order #%d is %s\n", o.ID, statusText(o.Status))
				return nil
			})
		},
	}
	if action == orders.ActionDecline {
		cmd.Flags().String("reason", "", "Reason shown to the customer")
	}
	return cmd
}

func printOrderLine(o *domain.Order) {
	fmt.Printf("#%-5d %-12s %8.2f  %s  %s\n",
		o.ID, statusText(o.Status), o.OfferedPrice,
		o.ScheduledTime.Local().Format("2006-01-02 15:04"), truncate(o.Description, 40))
}

func printOrder(o *domain.Order) {
	fmt.Printf("Order #%d\n", o.ID)
	fmt.Printf("  Status:      %s\n", statusText(o.Status))
	fmt.Printf("  Service:     %d\n", o.ServiceID)
	fmt.Printf("  Customer:    %d\n", o.CustomerID)
	if o.HasWorker() {
		fmt.Printf("  Worker:      %d\n", *o.WorkerID)
	}
	fmt.Printf("  Price:       %.2f\n", o.OfferedPrice)
	fmt.Printf("  Scheduled:   %s\n", o.ScheduledTime.Local().Format(time.RFC1123))
	fmt.Printf("  Delivery:    %s\n", o.DeliveryTime.Local().Format(time.RFC1123))
	if o.Location != nil && o.Location.Address != "" {
		fmt.Printf("  Address:     %s\n", o.Location.Address)
	}
	fmt.Printf("  Description: %s\n", o.Description)
	if o.DeclineReason != nil {
		fmt.Printf("  Declined:    %s\n", *o.DeclineReason)
	}
}

func statusText(s domain.OrderStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	ordersCreateCmd.Flags().Int64("service", 0, "Service id")
	ordersCreateCmd.Flags().String("description", "", "What needs to be done")
	ordersCreateCmd.Flags().Float64("price", 0, "Offered price")
	ordersCreateCmd.Flags().String("at", "", "Start time, RFC3339")
	ordersCreateCmd.Flags().Duration("duration", 2*time.Hour, "Expected duration")
	ordersCreateCmd.Flags().String("address", "", "Address")
	_ = ordersCreateCmd.MarkFlagRequired("service")
	_ = ordersCreateCmd.MarkFlagRequired("description")
	_ = ordersCreateCmd.MarkFlagRequired("at")

	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersShowCmd)
	ordersCmd.AddCommand(ordersCreateCmd)
	ordersCmd.AddCommand(ordersReorderCmd)
	ordersCmd.AddCommand(transitionCmd(orders.ActionAccept, "Accept a pending order for your service"))
	ordersCmd.AddCommand(transitionCmd(orders.ActionDecline, "Decline a pending order for your service"))
	ordersCmd.AddCommand(transitionCmd(orders.ActionStart, "Start an accepted order"))
	ordersCmd.AddCommand(transitionCmd(orders.ActionComplete, "Mark an order completed"))
	ordersCmd.AddCommand(transitionCmd(orders.ActionCancel, "Cancel your pending order"))
}
