package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/truemilk/estransport/pool"
	"github.com/truemilk/estransport/serializer"
)

// maybeSniff triggers a scheduled sniff when sniffer_timeout is set and
// enough time has elapsed since the last one. It never blocks the request
// that triggered it: see triggerSniff.
func (t *Transport) maybeSniff(ctx context.Context) {
	if t.cfg.snifferTimeout <= 0 {
		return
	}
	last := t.lastSniff.Load()
	if last != 0 && time.Since(time.Unix(0, last)) < t.cfg.snifferTimeout {
		return
	}
	t.triggerSniff()
}

// SniffHosts queries each seed connection in turn for GET /_nodes/_all/http
// until one succeeds, applies the HostInfoCallback to each returned node,
// and rebuilds the pool from the surviving host descriptors, reusing
// existing Connection instances by identity. It blocks until the sniff
// completes (or fails) and is used only for the one sniff New() performs
// synchronously when SniffOnStart is set.
func (t *Transport) SniffHosts(ctx context.Context, initial bool) error {
	_, err, _ := t.sniffGroup.Do("sniff", func() (any, error) {
		return nil, t.doSniff(ctx, initial)
	})
	return err
}

// triggerSniff starts a sniff without waiting for it to finish. Concurrent
// requests that find a sniff already in progress must proceed to
// GetConnection() rather than stall for the full sniff round trip, so this
// goes through singleflight.Group.DoChan — which starts the shared call in
// its own goroutine and returns immediately — instead of Do, which blocks
// the caller until the (possibly-shared) result is ready. The sniff runs
// against context.Background() rather than the triggering request's ctx,
// since that request may finish (and cancel its context) before the sniff
// does.
func (t *Transport) triggerSniff() {
	t.sniffGroup.DoChan("sniff", func() (any, error) {
		return nil, t.doSniff(context.Background(), false)
	})
}

func (t *Transport) doSniff(ctx context.Context, initial bool) error {
	timeout := t.cfg.sniffTimeout
	if initial {
		timeout = 0
	}

	var nodes pool.NodesResponse
	var lastErr error
	for _, seed := range t.seedConnections {
		status, _, body, err := seed.PerformRequest(ctx, http.MethodGet, "/_nodes/_all/http", nil, nil, timeout, nil, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 400 {
			lastErr = err
			continue
		}
		if decodeErr := decodeNodes(body, &nodes); decodeErr != nil {
			lastErr = decodeErr
			continue
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		return lastErr
	}

	descriptors := hostInfoToDescriptors(nodes, t.cfg.hostInfoCallback)

	existing := map[string]pool.ConnOpt{}
	for _, opt := range t.currentConnOpts() {
		existing[opt.Connection.ID()] = opt
	}

	factory := t.cfg.connectionFactory
	if factory == nil {
		factory = defaultConnectionFactory(t.cfg)
	}

	newOpts := make([]pool.ConnOpt, 0, len(descriptors))
	keep := map[string]bool{}
	for _, hd := range descriptors {
		candidate := factory(hd)
		if opt, ok := existing[candidate.ID()]; ok {
			newOpts = append(newOpts, opt)
			keep[opt.Connection.ID()] = true
			continue
		}
		newOpts = append(newOpts, pool.ConnOpt{Connection: candidate, Host: hd})
		keep[candidate.ID()] = true
	}

	for id, opt := range existing {
		if !keep[id] {
			_ = opt.Connection.Close()
		}
	}

	newPool := pool.New(newOpts, pool.Options{RandomizeHosts: t.cfg.randomizeHosts, DeadTimeout: t.cfg.deadTimeout})
	t.setPool(newPool)
	t.lastSniff.Store(time.Now().UnixNano())
	return nil
}

func (t *Transport) currentConnOpts() []pool.ConnOpt {
	activePool := t.currentPool()
	if rr, ok := activePool.(*pool.RoundRobinPool); ok {
		return rr.ConnectionOpts()
	}
	var opts []pool.ConnOpt
	for _, c := range activePool.Connections() {
		opts = append(opts, pool.ConnOpt{Connection: c})
	}
	return opts
}

func decodeNodes(body []byte, out *pool.NodesResponse) error {
	s := serializer.New()
	return s.Decode(body, "application/json", out)
}

func hostInfoToDescriptors(nodes pool.NodesResponse, cb pool.HostInfoCallback) []pool.HostDescriptor {
	if cb == nil {
		cb = pool.DefaultHostInfoCallback
	}
	var out []pool.HostDescriptor
	seq := 0
	for _, node := range nodes.Nodes {
		if hd := cb(node, seq); hd != nil {
			out = append(out, *hd)
		}
		seq++
	}
	return out
}
