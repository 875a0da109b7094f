// Command grpcbus hosts the bridge, runs a mock backend and issues calls
// through a bridge.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/crazyfrankie/grpcbus/config"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "grpcbus"
	app.Usage = "gRPC calls multiplexed over a single channel"
	app.Version = version
	app.Commands = []cli.Command{
		{
			Name:  "serve",
			Usage: "Accept bridge clients and proxy their calls to gRPC backends",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "config, c",
					Usage: "YAML configuration file",
				},
				cli.StringFlag{
					Name:  "listen, l",
					Usage: "Override the bridge listen address",
				},
				cli.StringFlag{
					Name:  "admin",
					Usage: "Override the admin HTTP address",
				},
				cli.StringSliceFlag{
					Name:  "descriptor-set, d",
					Usage: "Descriptor set file, may be repeated",
				},
			},
			Action: serveCommand,
		},
		{
			Name:  "mock-backend",
			Usage: "Serve the mock.Greeter service over gRPC",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "listen, l",
					Value: ":50051",
					Usage: "gRPC listen address",
				},
				cli.StringSliceFlag{
					Name:  "etcd",
					Usage: "etcd endpoint to register with, may be repeated",
				},
				cli.StringFlag{
					Name:  "name",
					Value: "greeter",
					Usage: "Name to register under in etcd",
				},
				cli.Int64Flag{
					Name:  "ttl",
					Value: 10,
					Usage: "Registration lease in seconds",
				},
			},
			Action: mockBackendCommand,
		},
		{
			Name:      "call",
			Usage:     "Call a method through a bridge and print the responses as JSON",
			ArgsUsage: "<service> <method> [json argument]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "addr, a",
					Value: "127.0.0.1" + config.DefaultListen,
					Usage: "Bridge address",
				},
				cli.StringFlag{
					Name:  "endpoint, e",
					Value: "localhost:50051",
					Usage: "Backend endpoint the bridge dials",
				},
				cli.StringSliceFlag{
					Name:  "descriptor-set, d",
					Usage: "Descriptor set file, may be repeated. The mock schema is used when none is given",
				},
				cli.StringSliceFlag{
					Name:  "header, H",
					Usage: "Call metadata as key=value, may be repeated",
				},
				cli.DurationFlag{
					Name:  "timeout, t",
					Value: defaultCallTimeout,
					Usage: "Give up after this long",
				},
			},
			Action: callCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().Sync()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
