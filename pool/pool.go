// Package pool implements the Elasticsearch connection pool: a live,
// round-robin set of connections plus a dead-node quarantine with
// exponential resurrection delay. This is the Go analogue of
// elasticsearch-py's ConnectionPool / DummyConnectionPool.
package pool

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/truemilk/estransport/connection"
)

// ConnectionPool hands out connections, tracks failures, and schedules
// resurrection. All mutating operations must be safe for concurrent use.
type ConnectionPool interface {
	GetConnection() (*connection.Connection, error)
	MarkDead(c *connection.Connection)
	MarkLive(c *connection.Connection)
	Connections() []*connection.Connection
	Close() error
}

// ConnOpt pairs a live Connection with the HostDescriptor it was built
// from, so sniffing can detect whether a host is already represented.
type ConnOpt struct {
	Connection *connection.Connection
	Host       HostDescriptor
}

type deadEntry struct {
	resurrectAt time.Time
	conn        *connection.Connection
	index       int
}

type deadHeap []*deadEntry

func (h deadHeap) Len() int            { return len(h) }
func (h deadHeap) Less(i, j int) bool  { return h[i].resurrectAt.Before(h[j].resurrectAt) }
func (h deadHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *deadHeap) Push(x any) {
	e := x.(*deadEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *deadHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Options configures a RoundRobinPool.
type Options struct {
	RandomizeHosts bool
	DeadTimeout    time.Duration // default 60s, per spec.md §4.3
	Rand           *rand.Rand
}

// RoundRobinPool is the general ConnectionPool: a live set handed out
// round-robin, a dead min-heap ordered by resurrection time, and a
// per-connection consecutive-failure counter driving the backoff.
type RoundRobinPool struct {
	mu             sync.Mutex
	connections    []*connection.Connection
	cursor         int
	dead           deadHeap
	deadIndex      map[string]*deadEntry
	deadCount      map[string]int
	connectionOpts []ConnOpt
	deadTimeout    time.Duration
}

// NewRoundRobinPool builds a pool over the given connections, paired with
// the HostDescriptor each was constructed from (for sniff-reuse detection).
func NewRoundRobinPool(conns []ConnOpt, opts Options) *RoundRobinPool {
	deadTimeout := opts.DeadTimeout
	if deadTimeout <= 0 {
		deadTimeout = 60 * time.Second
	}
	live := make([]*connection.Connection, len(conns))
	for i, c := range conns {
		live[i] = c.Connection
	}
	if opts.RandomizeHosts {
		r := opts.Rand
		if r == nil {
			r = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		r.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	}
	return &RoundRobinPool{
		connections:    live,
		deadIndex:      make(map[string]*deadEntry),
		deadCount:      make(map[string]int),
		connectionOpts: conns,
		deadTimeout:    deadTimeout,
	}
}

// ConnectionOpts returns the (connection, host descriptor) pairs used to
// detect whether a sniffed host is already represented in the pool.
func (p *RoundRobinPool) ConnectionOpts() []ConnOpt {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ConnOpt, len(p.connectionOpts))
	copy(out, p.connectionOpts)
	return out
}

// DeadCount returns a snapshot of the consecutive-failure counters, keyed by
// connection ID.
func (p *RoundRobinPool) DeadCount() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.deadCount))
	for k, v := range p.deadCount {
		out[k] = v
	}
	return out
}

// resurrect promotes any dead connection whose resurrectAt has passed back
// into the live set. When force is true and the live set is empty, it
// promotes the single soonest-due dead connection regardless of time.
// Caller must hold p.mu.
func (p *RoundRobinPool) resurrect(force bool) {
	now := time.Now()
	for p.dead.Len() > 0 {
		top := p.dead[0]
		if !force && top.resurrectAt.After(now) {
			break
		}
		heap.Pop(&p.dead)
		delete(p.deadIndex, top.conn.ID())
		p.connections = append(p.connections, top.conn)
		if force {
			break
		}
	}
}

// GetConnection returns a live connection via round-robin, resurrecting due
// (or, if the live set would otherwise be empty, the soonest-due) dead
// connections first. It never returns an error for a pool with at least one
// underlying connection.
func (p *RoundRobinPool) GetConnection() (*connection.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resurrect(false)
	if len(p.connections) == 0 {
		p.resurrect(true)
	}
	if len(p.connections) == 0 {
		return nil, ErrEmptyPool
	}

	p.cursor = (p.cursor + 1) % len(p.connections)
	return p.connections[p.cursor], nil
}

// MarkDead removes c from the live set, increments its consecutive-failure
// count, and schedules resurrection at
// now + min(60, 2^(failures-1)) * deadTimeout.
func (p *RoundRobinPool) MarkDead(c *connection.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := c.ID()
	for i, live := range p.connections {
		if live.ID() == id {
			p.connections = append(p.connections[:i], p.connections[i+1:]...)
			break
		}
	}

	p.deadCount[id]++
	failures := p.deadCount[id]
	multiplier := math.Min(60, math.Pow(2, float64(failures-1)))
	delay := time.Duration(multiplier * float64(p.deadTimeout))

	if existing, ok := p.deadIndex[id]; ok {
		existing.resurrectAt = time.Now().Add(delay)
		heap.Fix(&p.dead, existing.index)
		return
	}
	entry := &deadEntry{resurrectAt: time.Now().Add(delay), conn: c}
	heap.Push(&p.dead, entry)
	p.deadIndex[id] = entry
}

// MarkLive resets c's consecutive-failure count to zero.
func (p *RoundRobinPool) MarkLive(c *connection.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deadCount[c.ID()] = 0
}

// AddConnection appends a new live connection, paired with the host
// descriptor it was built from.
func (p *RoundRobinPool) AddConnection(opt ConnOpt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connections = append(p.connections, opt.Connection)
	p.connectionOpts = append(p.connectionOpts, opt)
}

// Connections returns a snapshot of the current live set.
func (p *RoundRobinPool) Connections() []*connection.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*connection.Connection, len(p.connections))
	copy(out, p.connections)
	return out
}

// Close closes every connection this pool knows about, live and dead, and
// returns the first error encountered (after attempting the rest).
func (p *RoundRobinPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, c := range p.connections {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, entry := range p.dead {
		if err := entry.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DummyPool is the degenerate single-node pool: MarkDead and MarkLive are
// no-ops and GetConnection always returns the one connection.
type DummyPool struct {
	conn *connection.Connection
}

// NewDummyPool wraps a single connection.
func NewDummyPool(c *connection.Connection) *DummyPool {
	return &DummyPool{conn: c}
}

func (p *DummyPool) GetConnection() (*connection.Connection, error) { return p.conn, nil }
func (p *DummyPool) MarkDead(*connection.Connection)                {}
func (p *DummyPool) MarkLive(*connection.Connection)                {}
func (p *DummyPool) Connections() []*connection.Connection          { return []*connection.Connection{p.conn} }
func (p *DummyPool) Close() error                                   { return p.conn.Close() }

// New picks DummyPool when there is exactly one connection, otherwise a
// RoundRobinPool, mirroring the Python Transport constructor's pool choice.
func New(conns []ConnOpt, opts Options) ConnectionPool {
	if len(conns) == 1 {
		return NewDummyPool(conns[0].Connection)
	}
	return NewRoundRobinPool(conns, opts)
}

// ErrEmptyPool is returned only when the pool was constructed with zero
// connections (never for a pool that started with at least one).
var ErrEmptyPool = emptyPoolError{}

type emptyPoolError struct{}

func (emptyPoolError) Error() string { return "pool: no connections available" }
