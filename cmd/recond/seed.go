package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardworks/recon/internal/config"
	"github.com/cardworks/recon/internal/storage/sqlite"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the database schema, default users and ruleset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		store, err := sqlite.Open(cmd.Context(), cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if err := store.Seed(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("seeded %s\n", cfg.DBPath)
		return nil
	},
}
