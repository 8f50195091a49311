// Package migrate applies and inspects the embedded goose migrations.
package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
)

// Command groups the migration helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database migrations",
	}

	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")

	cmd.AddCommand(upCommand())
	cmd.AddCommand(statusCommand())
	return cmd
}

func upCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			connString, err := databaseURL(cmd)
			if err != nil {
				return err
			}

			if err := persistence.RunMigrations(context.Background(), connString); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the goose migration status table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			connString, err := databaseURL(cmd)
			if err != nil {
				return err
			}

			return persistence.MigrationStatus(context.Background(), connString)
		},
	}
}

func databaseURL(cmd *cobra.Command) (string, error) {
	connString, err := cmd.Flags().GetString("database-url")
	if err != nil {
		return "", err
	}
	if connString == "" {
		connString = os.Getenv("DATABASE_URL")
	}
	if connString == "" {
		return "", fmt.Errorf("database url required (--database-url or DATABASE_URL)")
	}
	return connString, nil
}
