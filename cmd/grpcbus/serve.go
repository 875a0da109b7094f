package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crazyfrankie/grpcbus/admin"
	"github.com/crazyfrankie/grpcbus/backend"
	"github.com/crazyfrankie/grpcbus/bridge"
	"github.com/crazyfrankie/grpcbus/config"
	"github.com/crazyfrankie/grpcbus/discovery"
	"github.com/crazyfrankie/grpcbus/discovery/etcd"
	"github.com/crazyfrankie/grpcbus/discovery/memory"
	"github.com/crazyfrankie/grpcbus/internal/mock"
	"github.com/crazyfrankie/grpcbus/metrics"
	"github.com/crazyfrankie/grpcbus/schema"
	"github.com/crazyfrankie/grpcbus/server"
	"github.com/crazyfrankie/grpcbus/stats"
	"github.com/crazyfrankie/grpcbus/transport"
)

const shutdownTimeout = 5 * time.Second

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if v := c.String("listen"); v != "" {
		cfg.Listen = v
	}
	if v := c.String("admin"); v != "" {
		cfg.Admin = v
	}
	if v := c.StringSlice("descriptor-set"); len(v) > 0 {
		cfg.DescriptorSets = v
	}
	return cfg, cfg.Validate()
}

// loadSchema loads the descriptor sets, or the mock schema when none is
// configured.
func loadSchema(paths []string) (*schema.Registry, error) {
	if len(paths) == 0 {
		zap.L().Warn("no descriptor sets configured, serving the mock schema")
		return mock.Registry(), nil
	}
	return schema.LoadDescriptorSets(paths...)
}

// reloadAliases re-reads the config file and swaps in its alias table. New
// backend connections use it; open ones keep their address.
func reloadAliases(path string, r *memory.Resolver) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	r.Update(cfg.Aliases)
	zap.L().Info("aliases reloaded", zap.Int("count", len(cfg.Aliases)))
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer zap.ReplaceGlobals(logger)()
	defer logger.Sync()

	reg, err := loadSchema(cfg.DescriptorSets)
	if err != nil {
		return err
	}

	aliases := memory.NewResolver(cfg.Aliases)
	resolvers := []discovery.Resolver{aliases}
	if len(cfg.Etcd.Endpoints) > 0 {
		er, err := etcd.NewResolver(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout)
		if err != nil {
			return err
		}
		defer er.Close()
		resolvers = append(resolvers, er)
	}
	dialer := backend.NewGRPCDialer(backend.WithResolver(discovery.Chain(resolvers...)))

	latency := metrics.NewLatency(0)
	collector, err := metrics.NewCollector(prometheus.DefaultRegisterer, latency)
	if err != nil {
		return err
	}
	handlers := []stats.Handler{collector}
	if cfg.Tracing.Enabled {
		th, shutdown, err := newTracing(cfg.Tracing)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				zap.L().Warn("flush spans", zap.Error(err))
			}
		}()
		handlers = append(handlers, th)
		zap.L().Info("tracing enabled", zap.String("output", cfg.Tracing.Output), zap.Float64("sample_ratio", cfg.Tracing.SampleRatio))
	}

	host := bridge.NewHost(reg, dialer,
		bridge.WithServerOptions(
			server.WithCallTimeout(cfg.CallTimeout),
			server.WithDialTimeout(cfg.DialTimeout),
			server.WithStatsHandler(stats.Chain(handlers...)),
		),
		bridge.WithHostTransportOptions(transport.WithMaxMessageSize(cfg.MaxMessageSize)),
	)

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	zap.L().Info("bridge listening", zap.String("addr", lis.Addr().String()))
	g.Go(func() error {
		if err := host.Serve(lis); !errors.Is(err, bridge.ErrHostClosed) {
			return err
		}
		return nil
	})

	var adminSrv *http.Server
	if cfg.Admin != "" {
		adminSrv = &http.Server{
			Addr: cfg.Admin,
			Handler: admin.NewHandler(
				admin.WithSessions(host),
				admin.WithLatency(latency),
				admin.WithAliases(aliases),
			),
		}
		zap.L().Info("admin listening", zap.String("addr", cfg.Admin))
		g.Go(func() error {
			if err := adminSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if path := c.String("config"); path != "" {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-hup:
					if err := reloadAliases(path, aliases); err != nil {
						zap.L().Warn("reload aliases failed", zap.String("config", path), zap.Error(err))
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		zap.L().Info("shutting down")
		host.Stop()
		if adminSrv != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return adminSrv.Shutdown(sctx)
		}
		return nil
	})

	return g.Wait()
}
