package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/crazyfrankie/grpcbus/discovery/etcd"
	"github.com/crazyfrankie/grpcbus/internal/mock"
)

func mockBackendCommand(c *cli.Context) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer zap.ReplaceGlobals(logger)()

	lis, err := net.Listen("tcp", c.String("listen"))
	if err != nil {
		return err
	}
	addr := lis.Addr().String()

	srv := grpc.NewServer()
	mock.Register(srv, &mock.Greeter{})

	if endpoints := c.StringSlice("etcd"); len(endpoints) > 0 {
		reg, err := etcd.Register(endpoints, c.String("name"), addr, c.Int64("ttl"))
		if err != nil {
			return err
		}
		defer reg.Unregister()
		zap.L().Info("registered", zap.String("name", c.String("name")), zap.String("target", etcd.Scheme+c.String("name")))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	zap.L().Info("mock backend listening", zap.String("addr", addr), zap.String("service", mock.ServiceName))
	g.Go(func() error {
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.GracefulStop()
		return nil
	})
	return g.Wait()
}
