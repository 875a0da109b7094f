package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/naming/endpoints"
	"go.uber.org/zap"
)

// Registration keeps one backend address published under a name for as long
// as its lease is kept alive.
type Registration struct {
	ctx    context.Context
	cancel context.CancelFunc

	client  *clientv3.Client
	em      endpoints.Manager
	leaseID clientv3.LeaseID

	key string
	val endpoints.Endpoint
	ttl int64
}

// Register publishes addr under name. The entry is renewed until Unregister.
func Register(addrs []string, name, addr string, ttl int64) (*Registration, error) {
	if ttl <= 0 {
		ttl = 60
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   addrs,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registration{
		ctx:    ctx,
		cancel: cancel,
		client: cli,
		key:    name + "/" + addr,
		val:    endpoints.Endpoint{Addr: addr},
		ttl:    ttl,
	}
	r.em, err = endpoints.NewManager(cli, name)
	if err != nil {
		cancel()
		cli.Close()
		return nil, err
	}

	if err := r.register(); err != nil {
		cancel()
		cli.Close()
		return nil, err
	}

	go r.keepAlive()

	return r, nil
}

func (r *Registration) register() error {
	leaseResp, err := r.client.Grant(r.ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("create lease failed: %w", err)
	}
	r.leaseID = leaseResp.ID

	ctx, cancel := context.WithTimeout(r.ctx, 2*time.Second)
	defer cancel()
	return r.em.AddEndpoint(ctx, r.key, r.val, clientv3.WithLease(r.leaseID))
}

// keepAlive renews the lease, registering again once if it is lost.
func (r *Registration) keepAlive() {
	keepAliveCh, err := r.client.KeepAlive(r.ctx, r.leaseID)
	if err != nil {
		zap.L().Warn("create keep alive failed", zap.String("key", r.key), zap.Error(err))
		return
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case resp := <-keepAliveCh:
			if resp != nil {
				continue
			}
			if r.ctx.Err() != nil {
				return
			}
			zap.L().Info("lease has expired or been revoked, registering again", zap.String("key", r.key))
			if err := r.register(); err != nil {
				zap.L().Warn("register backend failed", zap.String("key", r.key), zap.Error(err))
				return
			}
			go r.keepAlive()
			return
		}
	}
}

// Unregister removes the entry and closes the etcd client.
func (r *Registration) Unregister() error {
	r.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.em.DeleteEndpoint(ctx, r.key); err != nil {
		zap.L().Warn("delete backend failed", zap.String("key", r.key), zap.Error(err))
	}
	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		zap.L().Warn("revoke lease failed", zap.String("key", r.key), zap.Error(err))
	}

	return r.client.Close()
}
