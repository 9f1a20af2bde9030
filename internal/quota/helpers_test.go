package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memGateway is an in-memory Gateway that records every saved table.
type memGateway struct {
	mu      sync.Mutex
	table   Table
	saves   int
	loadErr error
	saveErr error
}

func (g *memGateway) Load(_ context.Context) (Table, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loadErr != nil {
		return nil, g.loadErr
	}
	out := make(Table, len(g.table))
	for id, r := range g.table {
		out[id] = r.clone()
	}
	return out, nil
}

func (g *memGateway) Save(_ context.Context, table Table) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.saves++
	if g.saveErr != nil {
		return g.saveErr
	}
	g.table = table
	return nil
}

func (g *memGateway) saved() (Table, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.table, g.saves
}

type stubRenderer struct {
	err error
}

func (r stubRenderer) Render(text string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "data:image/png;base64," + text, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

var testZone = time.FixedZone("PHT", 8*60*60)

type testEnv struct {
	gw     *memGateway
	ledger *Ledger
	clock  *fakeClock
	svc    *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gw := &memGateway{}
	ledger := NewLedger(gw)
	clock := &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, testZone)}
	svc := NewService(ledger, stubRenderer{}, Config{KeyTTL: 12 * time.Hour, Location: testZone}, WithClock(clock.Now))
	return &testEnv{gw: gw, ledger: ledger, clock: clock, svc: svc}
}
