// Package lease drives lease administration from the command line: creating
// leases and kicking off the signing flow without going through the API.
package lease

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	leasesservice "github.com/coffeevibes888/rentflowhq-sub007/domains/leases/be/service"
	"github.com/coffeevibes888/rentflowhq-sub007/platform/go/persistence"
)

// Command groups the lease helpers.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lease",
		Short: "Lease administration (create, start-signing)",
	}

	cmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	cmd.PersistentFlags().String("signing-base-url", "", "Base URL signing links are minted under (defaults to SIGNING_BASE_URL)")
	cmd.PersistentFlags().Duration("link-ttl", 7*24*time.Hour, "Validity window for new signing links")

	cmd.AddCommand(createCommand())
	cmd.AddCommand(startSigningCommand())
	return cmd
}

func createCommand() *cobra.Command {
	var (
		propertyLabel   string
		landlordName    string
		landlordEmail   string
		tenantName      string
		tenantEmail     string
		rentAmountCents int64
		billingDay      int
		startDate       string
		endDate         string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a lease in draft state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			svc, cleanup, err := newLeaseService(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			start, err := time.Parse("2006-01-02", startDate)
			if err != nil {
				return fmt.Errorf("invalid start date %q (want YYYY-MM-DD): %w", startDate, err)
			}
			var end *time.Time
			if endDate != "" {
				parsed, err := time.Parse("2006-01-02", endDate)
				if err != nil {
					return fmt.Errorf("invalid end date %q (want YYYY-MM-DD): %w", endDate, err)
				}
				end = &parsed
			}

			lease, err := svc.Create(ctx, leasesservice.CreateInput{
				PropertyLabel:     propertyLabel,
				LandlordName:      landlordName,
				LandlordEmail:     landlordEmail,
				TenantName:        tenantName,
				TenantEmail:       tenantEmail,
				RentAmountCents:   rentAmountCents,
				BillingDayOfMonth: billingDay,
				StartDate:         start,
				EndDate:           end,
			})
			if err != nil {
				return fmt.Errorf("create lease: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Lease created: %s (%s, status %s)\n", lease.LeaseID, lease.PropertyLabel, lease.Status)
			return nil
		},
	}

	c.Flags().StringVar(&propertyLabel, "property-label", "", "Human-readable property label")
	c.Flags().StringVar(&landlordName, "landlord-name", "", "Landlord full name")
	c.Flags().StringVar(&landlordEmail, "landlord-email", "", "Landlord email address")
	c.Flags().StringVar(&tenantName, "tenant-name", "", "Tenant full name")
	c.Flags().StringVar(&tenantEmail, "tenant-email", "", "Tenant email address")
	c.Flags().Int64Var(&rentAmountCents, "rent-amount-cents", 0, "Monthly rent in cents")
	c.Flags().IntVar(&billingDay, "billing-day", 1, "Billing day of month (1-28)")
	c.Flags().StringVar(&startDate, "start-date", "", "Lease start date (YYYY-MM-DD)")
	c.Flags().StringVar(&endDate, "end-date", "", "Lease end date (YYYY-MM-DD, optional)")

	_ = c.MarkFlagRequired("property-label")
	_ = c.MarkFlagRequired("landlord-name")
	_ = c.MarkFlagRequired("landlord-email")
	_ = c.MarkFlagRequired("tenant-name")
	_ = c.MarkFlagRequired("tenant-email")
	_ = c.MarkFlagRequired("rent-amount-cents")
	_ = c.MarkFlagRequired("start-date")

	return c
}

func startSigningCommand() *cobra.Command {
	var leaseID string

	c := &cobra.Command{
		Use:   "start-signing",
		Short: "Move a draft lease into signing and invite the tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := context.Background()

			id, err := uuid.Parse(leaseID)
			if err != nil {
				return fmt.Errorf("invalid lease id: %w", err)
			}

			svc, cleanup, err := newLeaseService(ctx, cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			request, err := svc.StartSigning(ctx, id)
			if err != nil {
				return fmt.Errorf("start signing: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signing started for lease %s.\n", request.LeaseID)
			fmt.Fprintf(cmd.OutOrStdout(), "Tenant signing link: %s\n", request.SigningURL)
			if request.ExpiresAt != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Link expires: %s\n", request.ExpiresAt.Format(time.RFC3339))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "The invite email goes out with the next outbox drain.")
			return nil
		},
	}

	c.Flags().StringVar(&leaseID, "lease-id", "", "Lease UUID")
	_ = c.MarkFlagRequired("lease-id")

	return c
}

// newLeaseService wires the lease service the same way the API binary does.
func newLeaseService(ctx context.Context, cmd *cobra.Command) (leasesservice.Service, func(), error) {
	connString, err := cmd.Flags().GetString("database-url")
	if err != nil {
		return nil, nil, err
	}
	if connString == "" {
		connString = os.Getenv("DATABASE_URL")
	}
	if connString == "" {
		return nil, nil, fmt.Errorf("database url required (--database-url or DATABASE_URL)")
	}

	signingBaseURL, err := cmd.Flags().GetString("signing-base-url")
	if err != nil {
		return nil, nil, err
	}
	if signingBaseURL == "" {
		signingBaseURL = os.Getenv("SIGNING_BASE_URL")
	}
	if signingBaseURL == "" {
		return nil, nil, fmt.Errorf("signing base url required (--signing-base-url or SIGNING_BASE_URL)")
	}

	linkTTL, err := cmd.Flags().GetDuration("link-ttl")
	if err != nil {
		return nil, nil, err
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: connString})
	if err != nil {
		return nil, nil, fmt.Errorf("init pool: %w", err)
	}
	cleanup := func() { persistence.ClosePool(pool) }

	leaseStore, err := persistence.NewLeaseStore(pool)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init lease store: %w", err)
	}
	requestStore, err := persistence.NewSignatureRequestStore(pool)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("init signature request store: %w", err)
	}

	svc := leasesservice.New(leaseStore, requestStore, leasesservice.Config{
		SigningBaseURL: signingBaseURL,
		LinkTTL:        linkTTL,
	})
	return svc, cleanup, nil
}
