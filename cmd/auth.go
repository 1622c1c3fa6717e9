package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/listling/listling/internal/syncconfig"
)

var (
	loginUserID string
	loginEmail  string
	loginAPIKey string
	loginServer string
)

// How the API key is obtained (device flow, OAuth, etc.) belongs to the
// auth service; the client only stores the resulting credentials.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store server credentials and enable sync",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := syncconfig.Load()
		if err != nil {
			exitf("%v", err)
		}
		if loginUserID == "" || loginAPIKey == "" {
			exitf("--user-id and --api-key are required")
		}
		if loginServer != "" {
			cfg.ServerURL = loginServer
		}
		if err := syncconfig.SignIn(cfg, loginUserID, loginEmail, loginAPIKey); err != nil {
			exitf("%v", err)
		}
		fmt.Printf("Signed in as %s. Local lists will merge with your account on the next sync.\n", loginUserID)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear credentials and stop syncing",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := syncconfig.Load()
		if err != nil {
			exitf("%v", err)
		}
		if err := syncconfig.SignOut(cfg); err != nil {
			exitf("%v", err)
		}
		fmt.Println("Signed out. Your lists stay on this device.")
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginUserID, "user-id", "", "account user id")
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "account email")
	loginCmd.Flags().StringVar(&loginAPIKey, "api-key", "", "server API key")
	loginCmd.Flags().StringVar(&loginServer, "server", "", "server base URL")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}
