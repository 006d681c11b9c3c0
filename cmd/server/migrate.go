package main

import (
	"github.com/spf13/cobra"

	"github.com/obiente/interviewd/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create missing tables and indexes in DATABASE_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(config.Load(), true)
		if err != nil {
			return err
		}
		return st.Close()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
