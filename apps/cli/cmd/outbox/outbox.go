// Package outboxcmd drains pending notification events from the command line,
// which covers deployments that run the dispatcher on a schedule instead of
// inside the API binary.
package outboxcmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/logging"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/mail"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/outbox"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
)

// Command groups the outbox helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Notification outbox utilities",
	}

	cmd.AddCommand(drainCommand())
	return cmd
}

func drainCommand() *cobra.Command {
	var (
		databaseURL string
		batchSize   int
	)

	c := &cobra.Command{
		Use:   "drain",
		Short: "Send all due notification emails once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return fmt.Errorf("database url required (--database-url or DATABASE_URL)")
			}

			logger, err := logging.NewLogger(logging.Config{Component: "esign-cli", Level: "info"})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() {
				_ = logger.Sync()
			}()

			pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: databaseURL})
			if err != nil {
				return fmt.Errorf("init pool: %w", err)
			}
			defer persistence.ClosePool(pool)

			outboxStore, err := persistence.NewOutboxStore(pool)
			if err != nil {
				return fmt.Errorf("init outbox store: %w", err)
			}

			mailer, err := mailerFromEnv(logger)
			if err != nil {
				return err
			}

			dispatcher := outbox.NewDispatcher(outboxStore, mailer, logger, outbox.Config{BatchSize: batchSize})

			sent, err := dispatcher.DrainOnce(ctx)
			if err != nil {
				return fmt.Errorf("drain outbox: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d outbox event(s).\n", sent)
			return nil
		},
	}

	c.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	c.Flags().IntVar(&batchSize, "batch-size", 50, "Maximum events to process in this run")

	return c
}

// mailerFromEnv builds the same mailer the API uses: SMTP when SMTP_HOST is
// set, otherwise log-only delivery.
func mailerFromEnv(logger *zap.Logger) (mail.Mailer, error) {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		logger.Warn("no SMTP_HOST configured, notification emails will only be logged")
		return &mail.LogMailer{Logger: logger}, nil
	}

	port := 587
	if raw := os.Getenv("SMTP_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", raw, err)
		}
		port = parsed
	}

	from := os.Getenv("MAIL_FROM")
	if from == "" {
		from = "no-reply@rentflowhq.com"
	}
	fromName := os.Getenv("MAIL_FROM_NAME")
	if fromName == "" {
		fromName = "RentFlowHQ"
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     host,
		Port:     port,
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     from,
		FromName: fromName,
	})
	if err != nil {
		return nil, fmt.Errorf("init smtp mailer: %w", err)
	}
	return mailer, nil
}
