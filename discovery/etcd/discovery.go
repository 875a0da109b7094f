// Package etcd resolves and registers named backends through the etcd
// endpoint manager.
package etcd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/naming/endpoints"

	"github.com/crazyfrankie/grpcbus/discovery"
)

// Scheme prefixes endpoints resolved through etcd: "etcd:///<name>".
const Scheme = "etcd:///"

// Target extracts the service name from an etcd endpoint.
func Target(endpoint string) (string, bool) {
	name, ok := strings.CutPrefix(endpoint, Scheme)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Resolver resolves etcd endpoints to the first registered address in key
// order. It does not balance across addresses.
type Resolver struct {
	client *clientv3.Client
	owned  bool
}

// NewResolver connects to etcd.
func NewResolver(addrs []string, dialTimeout time.Duration) (*Resolver, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   addrs,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect etcd failed: %w", err)
	}
	return &Resolver{client: cli, owned: true}, nil
}

// NewResolverFromClient uses an existing client, which Close leaves open.
func NewResolverFromClient(cli *clientv3.Client) *Resolver {
	return &Resolver{client: cli}
}

func (r *Resolver) Resolve(ctx context.Context, endpoint string) (string, error) {
	name, ok := Target(endpoint)
	if !ok {
		return endpoint, nil
	}

	em, err := endpoints.NewManager(r.client, name)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	eps, err := em.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list endpoints of %s from etcd: %w", name, err)
	}
	addr, ok := first(eps)
	if !ok {
		return "", fmt.Errorf("%w: %s", discovery.ErrNoServers, name)
	}
	return addr, nil
}

// Close closes the etcd client if the resolver created it.
func (r *Resolver) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

func first(eps endpoints.Key2EndpointMap) (string, bool) {
	keys := make([]string, 0, len(eps))
	for k, ep := range eps {
		if ep.Addr == "" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return eps[keys[0]].Addr, true
}
