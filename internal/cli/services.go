package cli

import (
	"context"
	"fmt"

	httpapi "gymcore-backend/internal/api/http"
	"gymcore-backend/internal/consumer"
	"gymcore-backend/internal/paypal"
	"gymcore-backend/internal/service"

	"github.com/spf13/cobra"
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Run the ledger: webhook intake, checkout and manual settlement",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd.Context(), "payments", func(rt *runtime) (httpapi.Services, *consumer.Registry, error) {
			ledger, err := rt.ledgerService()
			if err != nil {
				return httpapi.Services{}, nil, err
			}
			return httpapi.Services{Ledger: ledger}, nil, nil
		})
	},
}

var membershipCmd = &cobra.Command{
	Use:   "membership",
	Short: "Run the membership saga consumer and join/ban endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd.Context(), "membership", func(rt *runtime) (httpapi.Services, *consumer.Registry, error) {
			svc := service.NewMembershipService(rt.store.GymRepository, rt.store.MembershipRepository, nil)
			reg := consumer.NewRegistry().
				Register("membership", consumer.MembershipSubscription, consumer.MembershipHandler(svc), workers)
			return httpapi.Services{Membership: svc}, reg, nil
		})
	},
}

var inventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Run the sale settlement consumer and POS endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd.Context(), "inventory", func(rt *runtime) (httpapi.Services, *consumer.Registry, error) {
			svc := service.NewInventoryService(rt.store.InventoryRepository, rt.publisher, rt.refs, nil)
			reg := consumer.NewRegistry().
				Register("inventory", consumer.InventorySubscription, consumer.InventoryHandler(svc), workers)
			return httpapi.Services{Inventory: svc}, reg, nil
		})
	},
}

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Run the settlement counters consumer and the KPI endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(cmd.Context(), "analytics", func(rt *runtime) (httpapi.Services, *consumer.Registry, error) {
			svc := rt.analyticsService()
			reg := consumer.NewRegistry().
				Register("analytics", consumer.AnalyticsSubscription, consumer.AnalyticsHandler(svc), workers)
			return httpapi.Services{Analytics: svc}, reg, nil
		})
	},
}

var redriveCmd = &cobra.Command{
	Use:   "redrive <external-ref>...",
	Short: "Republish the settlement event of completed payments",
	Long: `Republish the settlement event for payments that are already COMPLETED.

Use it when a settlement committed but its event never reached the bus.
Consumers are idempotent, so re-driving an applied payment is harmless.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rt, err := bootstrap(ctx, "redrive")
		if err != nil {
			return err
		}
		defer rt.Close()

		ledger, err := rt.ledgerService()
		if err != nil {
			return err
		}

		var failed int
		for _, ref := range args {
			if err := ledger.Redrive(ctx, ref); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", ref, err)
				failed++
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: re-driven\n", ref)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d payments not re-driven", failed, len(args))
		}
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{membershipCmd, inventoryCmd, analyticsCmd} {
		addWorkersFlag(cmd)
	}
}

type wireFunc func(rt *runtime) (httpapi.Services, *consumer.Registry, error)

func runService(ctx context.Context, name string, wire wireFunc) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := bootstrap(ctx, name)
	if err != nil {
		return err
	}
	defer rt.Close()

	svcs, reg, err := wire(rt)
	if err != nil {
		return err
	}
	return rt.serve(ctx, svcs, reg)
}

func (rt *runtime) ledgerService() (service.LedgerService, error) {
	if err := rt.cfg.ValidatePayPal(); err != nil {
		return nil, err
	}
	pp := rt.cfg.PayPal
	client := paypal.NewClient(paypal.Config{
		BaseURL:      pp.BaseURL,
		ClientID:     pp.ClientID,
		ClientSecret: pp.ClientSecret,
		Timeout:      pp.Timeout,
	})
	return service.NewLedgerService(rt.store.PaymentRepository, client, rt.publisher, rt.refs, service.LedgerOptions{
		WebhookID:       pp.WebhookID,
		FreshnessWindow: pp.FreshnessWindow,
		SkipSignature:   pp.SkipSignature,
		ReturnURL:       pp.ReturnURL,
		CancelURL:       pp.CancelURL,
	}), nil
}

func (rt *runtime) analyticsService() service.AnalyticsService {
	cache := service.NewMemoryKPICache(rt.cfg.Analytics.KPICacheTTL, nil)
	return service.NewAnalyticsService(rt.store.AnalyticsRepository, cache, service.AnalyticsOptions{
		DedupeTTL: rt.cfg.Analytics.DedupeTTL,
	})
}
