/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/conciliation"
	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/database"
)

const migrationSchema = "conciliation"

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: conciliation.SQLFiles,
		Root:       "sql",
	}
}

// openMigrationDB connects to the service database and makes sure the schema holding
// the migration table exists.
func openMigrationDB(ctx context.Context) (*sql.DB, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, fmt.Errorf("error fetching config: %w", err)
	}

	db, err := database.ConnectDB(ctx, cnf.DataSource.Dns)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+migrationSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}
	migrate.SetSchema(migrationSchema)
	return db, nil
}

func migrateCommands(_ *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run conciliation database migrations",
	}

	cmd.AddCommand(migrateUpCommands())
	cmd.AddCommand(migrateDownCommands())

	return cmd
}

func migrateUpCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(cmd.Context())
			if err != nil {
				log.Println(err)
				return
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrationSource(), migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
			} else {
				fmt.Printf("Applied %d migrations!\n", n)
			}
		},
	}

	return cmd
}

func migrateDownCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			db, err := openMigrationDB(cmd.Context())
			if err != nil {
				log.Println(err)
				return
			}
			defer db.Close()

			n, err := migrate.Exec(db, "postgres", migrationSource(), migrate.Down)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
		},
	}

	return cmd
}
