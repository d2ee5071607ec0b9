package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-profile USER_ID",
	Short: "Copy a user's resolved profile into the unified profile store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newServices(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close(cmd.Context())

		p, err := s.profiles.Migrate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
