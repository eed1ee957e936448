package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"servicemarket/internal/conversation"
	"servicemarket/internal/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat <order-id>",
	Short: "Open the conversation of an order",
	Long: `Prints the history, then every new message. Each line typed on stdin
is sent; an empty line refreshes, Ctrl+D or Ctrl+C leaves.`,
	Args: cobra.ExactArgs(1),
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
			h, err := e.chats.Open(ctx, id)
			if err != nil {
				return err
			}
			defer h.Close()

			for _, m := range h.Messages() {
				printMessage(m, actor.UserID)
			}
			h.OnMessage(func(m domain.Message) {
				if m.SenderID != actor.UserID {
					printMessage(m, actor.UserID)
				}
			})
			h.OnStateChange(func(s conversation.State, cause error) {
				if cause != nil {
					fmt.Printf("-- %s: %v\n", s, cause)
					return
				}
				fmt.Printf("-- %s\n", s)
			})
			fmt.Printf("-- order #%d, %s\n", id, h.State())

			lines := make(chan string)
			go func() {
				defer close(lines)
				sc := bufio.NewScanner(os.Stdin)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if strings.TrimSpace(line) == "" {
						if err := h.Refresh(ctx); err != nil {
							fmt.Printf("-- refresh failed: %v\n", err)
						}
						continue
					}
					if _, err := h.Send(ctx, line); err != nil {
						fmt.Printf("-- not sent: %s\n", domain.UserMessage(err))
					}
				}
			}
		})
	},
}

func printMessage(m domain.Message, self int64) {
	who := fmt.Sprintf("user %d", m.SenderID)
	if m.SenderID == self {
		who = "you"
	}
	fmt.Printf("[%s] %s: %s\n", m.SentAt.Local().Format("15:04"), who, m.Body)
}
