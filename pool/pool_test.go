package pool

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truemilk/estransport/connection"
)

func newTestConn(host string) *connection.Connection {
	return connection.New(connection.Options{Host: host, Port: 9200})
}

type closeTrackingDoer struct{ closed bool }

func (d *closeTrackingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, errors.New("closeTrackingDoer: Do not implemented")
}

func (d *closeTrackingDoer) CloseIdleConnections() { d.closed = true }

func newTrackedConn(host string) (*connection.Connection, *closeTrackingDoer) {
	d := &closeTrackingDoer{}
	return connection.New(connection.Options{Host: host, Port: 9200, Doer: d}), d
}

func TestNewPicksDummyPoolForSingleConnection(t *testing.T) {
	c := newTestConn("a")
	p := New([]ConnOpt{{Connection: c}}, Options{})
	_, ok := p.(*DummyPool)
	assert.True(t, ok)
}

func TestNewPicksRoundRobinForMultipleConnections(t *testing.T) {
	p := New([]ConnOpt{{Connection: newTestConn("a")}, {Connection: newTestConn("b")}}, Options{})
	_, ok := p.(*RoundRobinPool)
	assert.True(t, ok)
}

func TestDummyPoolMarkDeadIsNoop(t *testing.T) {
	c := newTestConn("a")
	p := NewDummyPool(c)
	p.MarkDead(c)
	got, err := p.GetConnection()
	require.NoError(t, err)
	assert.Same(t, c, got)
}

func TestRoundRobinPoolCyclesConnections(t *testing.T) {
	a, b := newTestConn("a"), newTestConn("b")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}, {Connection: b}}, Options{})

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		c, err := p.GetConnection()
		require.NoError(t, err)
		seen[c.ID()] = true
	}
	assert.Len(t, seen, 2)
}

func TestRoundRobinPoolCloseClosesLiveAndDeadConnections(t *testing.T) {
	a, da := newTrackedConn("a")
	b, db := newTrackedConn("b")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}, {Connection: b}}, Options{DeadTimeout: time.Hour})
	p.MarkDead(b)

	require.NoError(t, p.Close())
	assert.True(t, da.closed, "live connection must be closed")
	assert.True(t, db.closed, "dead connection must be closed")
}

func TestDummyPoolCloseClosesItsConnection(t *testing.T) {
	c, d := newTrackedConn("a")
	p := NewDummyPool(c)
	require.NoError(t, p.Close())
	assert.True(t, d.closed)
}

func TestRoundRobinPoolMarkDeadRemovesFromLiveSet(t *testing.T) {
	a, b := newTestConn("a"), newTestConn("b")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}, {Connection: b}}, Options{DeadTimeout: time.Hour})

	p.MarkDead(a)
	for i := 0; i < 4; i++ {
		c, err := p.GetConnection()
		require.NoError(t, err)
		assert.Equal(t, b.ID(), c.ID())
	}
}

func TestRoundRobinPoolResurrectsAfterTimeout(t *testing.T) {
	a, b := newTestConn("a"), newTestConn("b")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}, {Connection: b}}, Options{DeadTimeout: time.Millisecond})

	p.MarkDead(a)
	time.Sleep(5 * time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		c, err := p.GetConnection()
		require.NoError(t, err)
		seen[c.ID()] = true
	}
	assert.Len(t, seen, 2, "resurrected connection should rejoin the live set")
}

func TestRoundRobinPoolForceResurrectsWhenLiveSetEmpty(t *testing.T) {
	a := newTestConn("a")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}}, Options{DeadTimeout: time.Hour})

	p.MarkDead(a)
	c, err := p.GetConnection()
	require.NoError(t, err, "must force-resurrect rather than return an empty-pool error")
	assert.Equal(t, a.ID(), c.ID())
}

func TestRoundRobinPoolBackoffGrowsExponentially(t *testing.T) {
	a, b := newTestConn("a"), newTestConn("b")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}, {Connection: b}}, Options{DeadTimeout: time.Hour})

	p.MarkDead(a) // failures=1, delay = 1h
	p.MarkDead(a) // failures=2, delay = 2h

	require.Len(t, p.dead, 1)
	entry := p.dead[0]
	delay := entry.resurrectAt.Sub(time.Now())
	assert.Greater(t, delay, 90*time.Minute, "second failure should roughly double the backoff")
}

func TestRoundRobinPoolMarkLiveResetsFailureCount(t *testing.T) {
	a, b := newTestConn("a"), newTestConn("b")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}, {Connection: b}}, Options{DeadTimeout: time.Hour})

	p.MarkDead(a)
	p.MarkLive(a)
	assert.Equal(t, 0, p.DeadCount()[a.ID()])
}

func TestRoundRobinPoolAddConnectionGrowsLiveSet(t *testing.T) {
	a := newTestConn("a")
	p := NewRoundRobinPool([]ConnOpt{{Connection: a}}, Options{})
	b := newTestConn("b")
	p.AddConnection(ConnOpt{Connection: b})

	assert.Len(t, p.Connections(), 2)
}

func TestRoundRobinPoolEmptyPoolErrorsOnlyWhenConstructedEmpty(t *testing.T) {
	p := NewRoundRobinPool(nil, Options{})
	_, err := p.GetConnection()
	assert.ErrorIs(t, err, ErrEmptyPool)
}
