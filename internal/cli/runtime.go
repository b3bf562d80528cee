package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "gymcore-backend/internal/api/http"
	"gymcore-backend/internal/config"
	"gymcore-backend/internal/consumer"
	"gymcore-backend/internal/logger"
	"gymcore-backend/internal/messaging"
	"gymcore-backend/internal/obs"
	"gymcore-backend/internal/repository/postgres"
	"gymcore-backend/internal/security"

	"github.com/bwmarrin/snowflake"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// runtime holds the shared infrastructure every subcommand starts from.
type runtime struct {
	name           string
	log            *slog.Logger
	cfg            *config.Config
	db             *sql.DB
	store          *postgres.Store
	bus            *messaging.Connection
	publisher      *messaging.Publisher
	refs           *snowflake.Node
	shutdownTracer func(context.Context) error
}

func bootstrap(ctx context.Context, name string) (*runtime, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	rt := &runtime{name: name, cfg: cfg, log: logger.WithService(name)}
	rt.log.Info("Starting gymcore service", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)

	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	rt.shutdownTracer, err = obs.InitTracer(ctx, "gymcore-"+name, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Name, "user", cfg.Database.User)
	rt.db, err = sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		rt.db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if err := rt.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logger.Info("Database connection established")
	rt.store = postgres.NewStore(rt.db)

	// Initialize Bus
	topo := messaging.Topology{Exchange: cfg.RabbitMQ.Exchange, DeadLetterExchange: cfg.RabbitMQ.DeadLetterExchange}
	rt.bus, err = messaging.Dial(cfg.RabbitMQ.URL, topo)
	if err != nil {
		return nil, err
	}
	rt.publisher, err = rt.bus.Publisher()
	if err != nil {
		return nil, err
	}
	logger.Info("Broker connection established", "exchange", topo.Exchange, "dead_letter_exchange", topo.DeadLetterExchange)

	rt.refs, err = snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("invalid node id %d: %w", nodeID, err)
	}
	logger.Debug("Reference generator ready", "node_id", nodeID)

	ok = true
	return rt, nil
}

func (rt *runtime) tokenManager() security.TokenManager {
	return security.NewTokenManager(rt.cfg.JWT.Secret, time.Duration(rt.cfg.JWT.AccessTokenExpiry)*time.Minute)
}

func (rt *runtime) retrier() *consumer.Retrier {
	return consumer.NewRetrier(consumer.RetryPolicy{
		MaxRetries: rt.cfg.Saga.MaxRetries,
		Delay:      rt.cfg.Saga.RetryDelay,
	}, rt.publisher)
}

// serve runs the HTTP surface, the health server and (when reg is set) the
// queue consumers until a signal arrives or one of them fails.
func (rt *runtime) serve(ctx context.Context, svcs httpapi.Services, reg *consumer.Registry) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	health, err := obs.NewHealthServer(rt.cfg.GetHealthAddress())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              rt.cfg.GetHTTPAddress(),
		Handler:           httpapi.NewRouter(rt.tokenManager(), svcs),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Get().Handler(), slog.LevelError),
	}

	brokerClosed := rt.bus.NotifyClose()
	publisherClosed := rt.publisher.NotifyClose()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(health.Serve)
	g.Go(func() error {
		rt.log.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if reg != nil {
		g.Go(func() error {
			return reg.Run(gctx, consumer.FromConnection(rt.bus, rt.cfg.RabbitMQ.Prefetch), rt.retrier())
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case amqpErr := <-brokerClosed:
			if amqpErr != nil {
				return fmt.Errorf("broker connection lost: %w", amqpErr)
			}
			return errors.New("broker connection closed")
		}
	})
	g.Go(func() error {
		// settlements and retries cannot be published without this channel
		select {
		case <-gctx.Done():
			return nil
		case amqpErr := <-publisherClosed:
			if amqpErr != nil {
				return fmt.Errorf("publisher channel lost: %w", amqpErr)
			}
			return errors.New("publisher channel closed")
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		rt.log.Info("Shutting down")
		health.SetServing("", false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		health.Stop()
		return err
	})

	health.SetServing("", true)
	health.SetServing(rt.name, true)
	rt.log.Info("Service running")

	return g.Wait()
}

func (rt *runtime) Close() {
	if rt.publisher != nil {
		if err := rt.publisher.Close(); err != nil {
			logger.Warn("Failed to close publisher", "error", err)
		}
	}
	if rt.bus != nil && !rt.bus.IsClosed() {
		if err := rt.bus.Close(); err != nil {
			logger.Warn("Failed to close broker connection", "error", err)
		}
	}
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.shutdownTracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.shutdownTracer(ctx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}
	rt.log.Info("Stopped")
}
