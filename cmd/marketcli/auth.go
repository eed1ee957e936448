package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			password = os.Getenv("MARKET_PASSWORD")
		}
		if password == "" {
			fmt.Print("Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return err
			}
			password = strings.TrimSpace(line)
		}

		return withEnv(func(ctx context.Context, e *env) error {
			res, err := e.api.Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := e.session.SetTokens(res.TokenPair); err != nil {
				return err
			}
			fmt.Printf("Signed in as %s (%s, id %d)\n", res.User.Name, res.User.Role, res.User.ID)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, e *env) error {
			if err := e.session.Clear(); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(func(ctx context.Context, e *env) error {
			if _, err := e.actor(); err != nil {
				return err
			}
			s := e.session.Get()
			fmt.Printf("%s (%s, id %d)\n", s.Name, s.Role, s.UserID)
			return nil
		})
	},
}

func init() {
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.Flags().String("password", "", "Account password (or MARKET_PASSWORD, or prompt)")
	_ = loginCmd.MarkFlagRequired("email")
}
