package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/crazyfrankie/grpcbus/bridge"
	"github.com/crazyfrankie/grpcbus/client"
	"github.com/crazyfrankie/grpcbus/metadata"
)

const defaultCallTimeout = 30 * time.Second

// callCommand runs one call. Request streams read one JSON message per line
// from stdin; every response is printed as one JSON line.
func callCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.NewExitError("usage: grpcbus call <service> <method> [json argument]", 2)
	}
	service, method := c.Args().Get(0), c.Args().Get(1)

	md, err := parseHeaders(c.StringSlice("header"))
	if err != nil {
		return err
	}
	reg, err := loadSchema(c.StringSlice("descriptor-set"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	cc, err := bridge.Dial(ctx, c.String("addr"), reg,
		bridge.WithClientOptions(client.WithDefaultMetadata(md)))
	if err != nil {
		return err
	}
	defer cc.Close()

	pending, err := cc.Client().NewService(service, c.String("endpoint"))
	if err != nil {
		return err
	}
	svc, err := pending.Wait(ctx)
	if err != nil {
		return err
	}

	stub, ok := svc.Stub(method)
	if !ok {
		return fmt.Errorf("%w: %s", client.ErrNoSuchMethod, method)
	}

	r := &runner{out: os.Stdout, stub: stub}
	if !stub.Method().ClientStreaming() {
		data := "{}"
		if c.NArg() > 2 {
			data = c.Args().Get(2)
		}
		if r.arg, err = stub.Method().Input().FromJSON([]byte(data)); err != nil {
			return err
		}
	} else {
		r.in = os.Stdin
	}
	return r.run(ctx)
}

type runner struct {
	stub *client.Stub
	arg  proto.Message
	in   io.Reader
	out  io.Writer
}

func (r *runner) run(ctx context.Context) error {
	m := r.stub.Method()
	result := make(chan error, 1)

	var (
		cb   client.Callback
		opts []client.CallOption
	)
	if m.ServerStreaming() {
		opts = append(opts,
			client.WithListener(client.EventData, func(ev client.Event) { r.print(ev.Message) }),
			client.WithListener(client.EventError, func(ev client.Event) { report(result, ev.Err) }),
			client.WithListener(client.EventStatus, func(ev client.Event) { report(result, ev.Status.Err()) }),
			// Only a call torn down before its status carries an error here.
			client.WithListener(client.EventEnd, func(ev client.Event) {
				if ev.Err != nil {
					report(result, ev.Err)
				}
			}),
		)
	} else {
		cb = func(resp proto.Message, err error) {
			if err == nil {
				r.print(resp)
			}
			report(result, err)
		}
	}

	call, err := r.stub.Call(r.arg, cb, opts...)
	if err != nil {
		return err
	}
	if r.in != nil {
		if err := r.stream(call); err != nil {
			call.Terminate()
			return err
		}
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		call.Terminate()
		return ctx.Err()
	}
}

// report keeps the first outcome of a call. Callers never block on it.
func report(result chan<- error, err error) {
	select {
	case result <- err:
	default:
	}
}

// stream writes every line of r.in to the request stream, then ends it.
func (r *runner) stream(call *client.Call) error {
	in := r.stub.Method().Input()
	sc := bufio.NewScanner(r.in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		msg, err := in.FromJSON([]byte(line))
		if err != nil {
			return err
		}
		if err := call.Write(msg); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return call.End()
}

func (r *runner) print(msg proto.Message) {
	b, err := protojson.Marshal(msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Fprintln(r.out, string(b))
}

func parseHeaders(headers []string) (metadata.MD, error) {
	kv := make([]string, 0, 2*len(headers))
	for _, h := range headers {
		k, v, ok := strings.Cut(h, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("header %q is not key=value", h)
		}
		kv = append(kv, k, v)
	}
	return metadata.Pairs(kv...), nil
}

