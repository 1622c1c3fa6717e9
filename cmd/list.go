package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createDescription string
	createColor       string
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		list, err := a.service.CreateList(args[0], createDescription, createColor)
		if err != nil {
			exitf("%v", err)
		}
		fmt.Printf("Created %s (%s)\n", list.Name, list.ID)
	},
}

var listsCmd = &cobra.Command{
	Use:     "lists",
	Aliases: []string{"ls"},
	Short:   "Show all lists",
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		all, err := a.service.Lists()
		if err != nil {
			exitf("%v", err)
		}
		if len(all) == 0 {
			fmt.Println("No lists yet. Create one with 'listling create <name>'.")
			return
		}
		for _, l := range all {
			open := 0
			for _, it := range l.ActiveItems() {
				if !it.Completed {
					open++
				}
			}
			fmt.Printf("%-14s %-24s %d open, %d members\n", l.ID, l.Name, open, len(l.Members))
		}
	},
}

var showCmd = &cobra.Command{
	Use:   "show <list>",
	Short: "Show a list and its items",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		list, err := a.service.Get(args[0])
		if err != nil {
			exitf("%v", err)
		}
		fmt.Printf("%s (%s)\n", list.Name, list.ID)
		if list.Description != "" {
			fmt.Println(list.Description)
		}
		for _, it := range list.ActiveItems() {
			mark := " "
			if it.Completed {
				mark = "x"
			}
			if it.Quantity != "" {
				fmt.Printf("  [%s] %s  %s (%s)\n", mark, it.ID, it.Name, it.Quantity)
			} else {
				fmt.Printf("  [%s] %s  %s\n", mark, it.ID, it.Name)
			}
		}
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <list> <name>",
	Short: "Rename a list",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if err := a.service.Rename(args[0], args[1]); err != nil {
			exitf("%v", err)
		}
		fmt.Println("Renamed.")
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <list>",
	Short: "Delete a list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a, err := buildApp()
		if err != nil {
			exitf("%v", err)
		}
		defer a.close()

		if err := a.service.DeleteList(args[0]); err != nil {
			exitf("%v", err)
		}
		fmt.Println("Deleted. The removal syncs to other devices in the background.")
	},
}

func init() {
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "list description")
	createCmd.Flags().StringVarP(&createColor, "color", "c", "", "list color")
	rootCmd.AddCommand(createCmd, listsCmd, showCmd, renameCmd, rmCmd)
}
