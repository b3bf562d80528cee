package consumer

import (
	"context"
	"fmt"

	"gymcore-backend/internal/domain"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/messaging"

	"golang.org/x/sync/errgroup"
)

// Queue bindings for the saga consumers.
var (
	MembershipSubscription = messaging.Subscription{
		Queue:      "gym-management.payment.completed",
		RoutingKey: domain.RoutingKeyPaymentCompleted,
	}
	InventorySubscription = messaging.Subscription{
		Queue:      "inventory.sale.completed",
		RoutingKey: domain.RoutingKeySaleCompleted,
	}
	AnalyticsSubscription = messaging.Subscription{
		Queue:      "analytics.payment.completed",
		RoutingKey: domain.RoutingKeyPaymentCompleted,
	}
)

// Registration binds a handler to a queue with a number of workers.
type Registration struct {
	Name         string
	Subscription messaging.Subscription
	Handler      Handler
	Workers      int
}

// Registry is the table of subscriptions a process consumes, built at start-up.
type Registry struct {
	regs []Registration
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(name string, sub messaging.Subscription, h Handler, workers int) *Registry {
	if workers < 1 {
		workers = 1
	}
	r.regs = append(r.regs, Registration{Name: name, Subscription: sub, Handler: h, Workers: workers})
	return r
}

func (r *Registry) Registrations() []Registration {
	return append([]Registration(nil), r.regs...)
}

// Loop is a running subscription.
type Loop interface {
	Run(ctx context.Context, handle messaging.HandlerFunc) error
	Close() error
}

// OpenFunc opens one consumer channel for a subscription.
type OpenFunc func(sub messaging.Subscription, tag string) (Loop, error)

// FromConnection opens consumers on a shared broker connection.
func FromConnection(conn *messaging.Connection, prefetch int) OpenFunc {
	return func(sub messaging.Subscription, tag string) (Loop, error) {
		if sub.Prefetch == 0 {
			sub.Prefetch = prefetch
		}
		c, err := conn.Consumer(sub, tag)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Run starts every worker of every registration and blocks until ctx is done
// or one of them fails. Each worker owns its channel, so deliveries on one
// worker are handled strictly one at a time.
func (r *Registry) Run(ctx context.Context, open OpenFunc, retrier *Retrier) error {
	type worker struct {
		reg  Registration
		loop Loop
	}

	var workers []worker
	closeAll := func() {
		for _, w := range workers {
			_ = w.loop.Close()
		}
	}

	for _, reg := range r.regs {
		for i := 0; i < reg.Workers; i++ {
			tag := fmt.Sprintf("%s-%d", reg.Name, i)
			loop, err := open(reg.Subscription, tag)
			if err != nil {
				closeAll()
				return fmt.Errorf("open consumer %s: %w", tag, err)
			}
			workers = append(workers, worker{reg: reg, loop: loop})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		handle := retrier.Wrap(w.reg.Handler)
		loop := w.loop
		g.Go(func() error {
			return loop.Run(gctx, handle)
		})
	}

	logger.Info("Consumers running", "workers", len(workers), "registrations", len(r.regs))
	err := g.Wait()
	closeAll()
	return err
}
