package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var sayCmd = &cobra.Command{
	Use:   "say <text...>",
	Short: "Send one typed message to the avatar",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		st := newStack(cfg)
		if err := st.chat.Send(strings.Join(args, " ")); err != nil {
			return err
		}
		st.dispatcher.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sayCmd)
}
