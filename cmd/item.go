package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addQuantity string

var addCmd = &cobra.Command{
	Use:   "add <list> <name>",
	Short: "Add an item to a list",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		item, err := a.service.AddItem(args[0], args[1], addQuantity)
		if err != nil {
			exitf("%v", err)
		}
		fmt.Printf("Added %s (%s)\n", item.Name, item.ID)
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <list> <item>",
	Short: "Mark an item completed",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if err := a.service.SetItemCompleted(args[0], args[1], true); err != nil {
			exitf("%v", err)
		}
		fmt.Println("Done.")
	},
}

var undoneCmd = &cobra.Command{
	Use:   "undone <list> <item>",
	Short: "Mark an item not completed",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if err := a.service.SetItemCompleted(args[0], args[1], false); err != nil {
			exitf("%v", err)
		}
		fmt.Println("Reopened.")
	},
}

var rmItemCmd = &cobra.Command{
	Use:   "rm-item <list> <item>",
	Short: "Delete an item",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if err := a.service.DeleteItem(args[0], args[1]); err != nil {
			exitf("%v", err)
		}
		fmt.Println("Deleted.")
	},
}

func init() {
	addCmd.Flags().StringVarP(&addQuantity, "quantity", "q", "", "item quantity, e.g. \"2 kg\"")
	rootCmd.AddCommand(addCmd, doneCmd, undoneCmd, rmItemCmd)
}
