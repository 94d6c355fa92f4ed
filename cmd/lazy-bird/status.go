package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yusufkaraaslan/lazy-bird/internal/supervisor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the lazy-bird systemd units",
	RunE: func(cmd *cobra.Command, args []string) error {
		services := supervisor.New()
		statuses := services.StatusAll(cmd.Context())
		for _, name := range services.Names() {
			st, ok := statuses[name]
			if !ok {
				continue
			}
			loaded := "not loaded"
			if st.Loaded {
				loaded = "loaded"
			}
			fmt.Printf("%-10s %-10s %s (%s)\n", st.Name, st.Status, st.Unit, loaded)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
