package main

import (
	"fmt"

	"github.com/smallbiznis/commissionrail/internal/config"
	"github.com/smallbiznis/commissionrail/internal/migration"
	"github.com/smallbiznis/commissionrail/pkg/db"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func migrateCmd() *cobra.Command {
	var listOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if listOnly {
				files, err := migration.Files()
				if err != nil {
					return err
				}
				for _, name := range files {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			cfg := config.Load()
			if cfg.DBType != "postgres" {
				return fmt.Errorf("migrations require postgres, got %q", cfg.DBType)
			}
			dialector, err := db.Dialect(cfg)
			if err != nil {
				return err
			}
			conn, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			version, dirty, err := migration.Version(sqlDB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}

	cmd.Flags().BoolVar(&listOnly, "list", false, "print embedded migration files without applying them")
	return cmd
}
