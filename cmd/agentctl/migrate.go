package main

import (
	"fmt"

	"ai-todo-agent-be/internal/config"
	"ai-todo-agent-be/internal/model"
	"ai-todo-agent-be/pkg/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the agent tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			if err := db.AutoMigrate(model.All()...); err != nil {
				return fmt.Errorf("automigrate: %w", err)
			}
			okColor.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(model.All()))
			return nil
		},
	}
}
