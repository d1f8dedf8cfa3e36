package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apache/thrift/lib/go/thrift"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/guileen/rpcpool/config"
	"github.com/guileen/rpcpool/lifecycle"
	"github.com/guileen/rpcpool/logger"
	"github.com/guileen/rpcpool/manager"
	"github.com/guileen/rpcpool/network"
	"github.com/guileen/rpcpool/pool"
	"github.com/guileen/rpcpool/protocol/api"
	"github.com/guileen/rpcpool/protocol/pgwire"
	"github.com/guileen/rpcpool/protocol/thriftwire"
)

func main() {
	configPath := flag.String("config", os.Getenv("RPCPOOL_CONFIG"), "path to YAML config file")
	flag.Parse()

	startTime := time.Now()
	logger.Info("Starting rpcpool", "startup_time", startTime.Format(time.RFC3339))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger.Info("Configuration loaded", "config", cfg.String())

	p, closePool, err := buildPool(cfg)
	if err != nil {
		log.Fatalf("failed to build pool: %v", err)
	}
	defer closePool()

	if err := serve(cfg, p); err != nil {
		logger.Error("rpcpool stopped with error", logger.ErrorField(err))
		closePool()
		os.Exit(1)
	}
	logger.Info("rpcpool shutdown complete", "total_duration", time.Since(startTime).String())
}

func buildPool(cfg *config.Config) (api.Pool, func(), error) {
	opts := []network.Option{network.WithConnectTimeout(cfg.ConnectTimeout)}
	poolCfg := pool.Config{
		Name:              cfg.Protocol,
		MaxConnections:    cfg.Pool.MaxConnections,
		ConnectionTimeout: cfg.Pool.CheckoutTimeout,
	}

	switch cfg.Protocol {
	case config.ProtocolThrift:
		transport, err := thriftwire.ParseTransportKind(cfg.Thrift.Transport)
		if err != nil {
			return nil, nil, err
		}
		protocol, err := thriftwire.ParseProtocolKind(cfg.Thrift.Protocol)
		if err != nil {
			return nil, nil, err
		}
		layering := thriftwire.NewLayering(transport, protocol, &thrift.TConfiguration{
			ConnectTimeout: cfg.ConnectTimeout,
			SocketTimeout:  cfg.Thrift.SocketTimeout,
		})
		factory, err := network.NewAddressFailoverFactory(cfg.Endpoints, layering, thriftwire.NewPingClient, opts...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Thrift factory created", "transport", transport.String(), "protocol", protocol.String())
		return newPool(cfg.Pool.Mode, poolCfg, manager.New[*thriftwire.PingClient](factory))

	case config.ProtocolPGWire:
		layering := pgwire.NewLayering(pgwire.Params{
			User:     cfg.PGWire.User,
			Database: cfg.PGWire.Database,
			Extra:    map[string]string{"application_name": cfg.PGWire.ApplicationName},
		})
		factory, err := network.NewAddressFailoverFactory(cfg.Endpoints, layering, pgwire.NewClient, opts...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("PostgreSQL wire factory created", "user", cfg.PGWire.User, "database", cfg.PGWire.Database)
		return newPool(cfg.Pool.Mode, poolCfg, manager.New[*pgwire.Client](factory))
	}
	return nil, nil, fmt.Errorf("unsupported protocol %q", cfg.Protocol)
}

func newPool[C lifecycle.Connection](mode string, poolCfg pool.Config, m *manager.PoolManager[C]) (api.Pool, func(), error) {
	if mode == config.ModeBlocking {
		p := pool.NewBlockingPool[C](poolCfg, m.Blocking())
		logger.Info("Blocking pool created", "max_connections", poolCfg.MaxConnections)
		return api.Blocking(p), p.Close, nil
	}

	p, err := pool.NewSuspendingPool[C](poolCfg, m.Suspending())
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Suspending pool created", "max_connections", poolCfg.MaxConnections)
	return api.Suspending(p), p.Close, nil
}

func serve(cfg *config.Config, p api.Pool) error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	api.NewPoolHandler(p).RegisterRoutes(r)

	server := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "address", cfg.HTTP.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownStart := time.Now()
		logger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		logger.Info("HTTP server shutdown complete", "shutdown_duration", time.Since(shutdownStart).String())
		return nil
	})
	return g.Wait()
}
