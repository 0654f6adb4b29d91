// Package discovery publishes monitor observations to etcd so other processes
// can see the fleet's health.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DefaultPrefix = "/cloudheal/nodes/"

	valueHealthy   = "healthy"
	valueUnhealthy = "unhealthy"
)

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create etcd client: %w", err)
	}
	return cli, nil
}

// Publisher writes one key per node under prefix, all bound to a single lease
// so the keys vanish when the simulation goes away.
type Publisher struct {
	kv      clientv3.KV
	lease   clientv3.Lease
	id      clientv3.LeaseID
	prefix  string
	timeout time.Duration
	cancel  context.CancelFunc
}

// NewPublisher grants a lease of ttl seconds and keeps it alive until Close.
// Every etcd request it makes, including the grant, is bounded by timeout;
// zero leaves requests bounded only by the caller's context.
func NewPublisher(ctx context.Context, cli *clientv3.Client, prefix string, ttl int64, timeout time.Duration) (*Publisher, error) {
	return newPublisher(ctx, cli.KV, cli.Lease, prefix, ttl, timeout)
}

func newPublisher(ctx context.Context, kv clientv3.KV, lease clientv3.Lease, prefix string, ttl int64, timeout time.Duration) (*Publisher, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	grantCtx, cancelGrant := withTimeout(ctx, timeout)
	grant, err := lease.Grant(grantCtx, ttl)
	cancelGrant()
	if err != nil {
		return nil, fmt.Errorf("grant lease: %w", err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := lease.KeepAlive(kaCtx, grant.ID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("keep lease alive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()

	return &Publisher{
		kv:      kv,
		lease:   lease,
		id:      grant.ID,
		prefix:  prefix,
		timeout: timeout,
		cancel:  cancel,
	}, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Key returns the etcd key holding the health of node id.
func (p *Publisher) Key(id string) string {
	return p.prefix + id
}

// Report writes the observed health for id. It satisfies monitor.Reporter.
func (p *Publisher) Report(ctx context.Context, id string, healthy, _ bool) error {
	val := valueUnhealthy
	if healthy {
		val = valueHealthy
	}
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.kv.Put(ctx, p.Key(id), val, clientv3.WithLease(p.id)); err != nil {
		return fmt.Errorf("put %s: %w", p.Key(id), err)
	}
	return nil
}

// Close stops the keepalive and revokes the lease, deleting every published key.
func (p *Publisher) Close(ctx context.Context) error {
	p.cancel()
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.lease.Revoke(ctx, p.id); err != nil {
		return fmt.Errorf("revoke lease: %w", err)
	}
	return nil
}

// Statuses reads every published node health under prefix, keyed by node ID.
func Statuses(ctx context.Context, kv clientv3.KV, prefix string) (map[string]bool, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	resp, err := kv.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", prefix, err)
	}
	out := make(map[string]bool, len(resp.Kvs))
	for _, item := range resp.Kvs {
		id := strings.TrimPrefix(string(item.Key), prefix)
		out[id] = string(item.Value) == valueHealthy
	}
	return out, nil
}
