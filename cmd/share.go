package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var shareCmd = &cobra.Command{
	Use:   "share <list> <email>",
	Short: "Share a list with another user by email",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		outcome, err := a.service.ShareList(ctx, args[0], args[1])
		if err != nil {
			exitf("%v", err)
		}
		fmt.Printf("Shared %s with %s\n", outcome.ListID, outcome.Member.Email)
	},
}

var membersCmd = &cobra.Command{
	Use:   "members <list>",
	Short: "Show who a list is shared with",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		members, err := a.service.Members(args[0])
		if err != nil {
			exitf("%v", err)
		}
		for _, m := range members {
			name := m.DisplayName
			if name == "" {
				name = m.PrincipalID
			}
			fmt.Printf("%-24s %-10s %s\n", name, m.Role, m.Email)
		}
	},
}

func init() {
	rootCmd.AddCommand(shareCmd, membersCmd)
}
