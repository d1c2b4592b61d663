package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the images table and indexes in the configured SQL database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.SQL()
		if s == nil {
			return errors.New("migrate requires store_backend sqlite or postgres")
		}
		if err := s.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(stdout(cmd), "Schema is up to date.")
		return nil
	},
}
