// Package gatewaytest provides gateways for tests: a real sqlite gateway in
// a temporary directory and an executor wrapper that injects failures.
package gatewaytest

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/internal/gateway"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// Open attaches a sqlite gateway in t.TempDir and detaches it on cleanup.
func Open(t *testing.T) *gateway.Gateway {
	t.Helper()
	g := gateway.New()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}
	if err := g.Attach(context.Background(), cfg); err != nil {
		t.Fatalf("attach gateway: %v", err)
	}
	t.Cleanup(func() { g.Detach() })
	return g
}

// Faulty wraps an executor. Statements containing any of the substrings in
// FailOn fail with a QueryError; when Down is set every call fails with a
// ConnectionError. Probes counts TableExists calls.
type Faulty struct {
	types.Executor

	mu     sync.Mutex
	FailOn []string
	Down   bool
	Probes int
}

// NewFaulty wraps exec.
func NewFaulty(exec types.Executor) *Faulty {
	return &Faulty{Executor: exec}
}

// Fail makes statements containing substr fail.
func (f *Faulty) Fail(substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailOn = append(f.FailOn, substr)
}

// Heal clears every injected failure.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailOn = nil
	f.Down = false
}

// SetDown makes every call fail as if the backend were unreachable.
func (f *Faulty) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Down = down
}

// ProbeCount returns the number of TableExists calls seen.
func (f *Faulty) ProbeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Probes
}

func (f *Faulty) check(stmt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Down {
		return errors.New(types.KindConnection, "backend unreachable")
	}
	for _, s := range f.FailOn {
		if strings.Contains(stmt, s) {
			return errors.Newf(types.KindQuery, "injected failure: %s", s)
		}
	}
	return nil
}

func (f *Faulty) Read(ctx context.Context, query string) (*types.Result, error) {
	if err := f.check(query); err != nil {
		return nil, err
	}
	return f.Executor.Read(ctx, query)
}

func (f *Faulty) Write(ctx context.Context, stmts ...string) error {
	for _, s := range stmts {
		if err := f.check(s); err != nil {
			return err
		}
	}
	return f.Executor.Write(ctx, stmts...)
}

func (f *Faulty) Begin(ctx context.Context) (types.Conn, error) {
	if err := f.check(""); err != nil {
		return nil, err
	}
	c, err := f.Executor.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &faultyConn{Conn: c, f: f}, nil
}

func (f *Faulty) TableExists(ctx context.Context, table string) (bool, error) {
	f.mu.Lock()
	f.Probes++
	f.mu.Unlock()
	if err := f.check("table directory " + table); err != nil {
		return false, err
	}
	return f.Executor.TableExists(ctx, table)
}

type faultyConn struct {
	types.Conn
	f *Faulty
}

func (c *faultyConn) Exec(ctx context.Context, stmt string) error {
	if err := c.f.check(stmt); err != nil {
		return err
	}
	return c.Conn.Exec(ctx, stmt)
}

func (c *faultyConn) Query(ctx context.Context, query string) (*types.Result, error) {
	if err := c.f.check(query); err != nil {
		return nil, err
	}
	return c.Conn.Query(ctx, query)
}
