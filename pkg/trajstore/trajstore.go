// Package trajstore is the public entry point: it attaches a backend and
// wires the catalog, the dataset registry and the data access layer over it.
//
// Example:
//
//	store, err := trajstore.Open(ctx, types.Config{
//	    Backend: types.BackendSQLite,
//	    DataDir: ".trajstore",
//	}, trajstore.Options{})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	id, ok := store.Registry().Create(ctx, rec, false)
//	if !ok {
//	    return errsink.Err(store.Drain())
//	}
package trajstore

import (
	"context"

	"github.com/mesh-intelligence/trajstore/internal/access"
	"github.com/mesh-intelligence/trajstore/internal/catalog"
	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/gateway"
	"github.com/mesh-intelligence/trajstore/internal/registry"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// Options tunes Open. The zero value is ready to use.
type Options struct {
	// AssumeBootstrapped skips the catalog existence probe.
	AssumeBootstrapped bool

	// Guards may veto dataset deletion.
	Guards []registry.DeleteGuard

	// BatchSize is the number of points per INSERT; zero uses the default.
	BatchSize int
}

// Store is an attached trajectory store.
type Store struct {
	gw   *gateway.Gateway
	sink *errsink.Sink
	cat  *catalog.Catalog
	reg  *registry.Registry
	acc  *access.Access
}

// Open attaches the backend described by cfg and bootstraps the catalog.
// The catalog existence probe runs at most once per process and database
// unless opts.AssumeBootstrapped skips it entirely.
func Open(ctx context.Context, cfg types.Config, opts Options) (*Store, error) {
	gw := gateway.New()
	if err := gw.Attach(ctx, cfg); err != nil {
		return nil, err
	}

	root := errsink.New("trajstore")
	cat, err := catalog.New(ctx, gw, errsink.New("catalog"), catalog.Options{
		AssumeBootstrapped: opts.AssumeBootstrapped,
		Verified:           catalog.VerifiedFor(cfg.Location()),
	})
	if err != nil {
		gw.Detach()
		return nil, err
	}

	reg := registry.New(gw, cat, errsink.New("registry"), registry.Options{
		Provisioner: gw,
		Guards:      opts.Guards,
		BatchSize:   opts.BatchSize,
	})
	acc := access.New(gw, reg, errsink.New("access"))
	root.AddChild(reg.Sink())
	root.AddChild(acc.Sink())

	return &Store{gw: gw, sink: root, cat: cat, reg: reg, acc: acc}, nil
}

// Catalog returns the dataset catalog.
func (s *Store) Catalog() *catalog.Catalog { return s.cat }

// Registry returns the dataset registry.
func (s *Store) Registry() *registry.Registry { return s.reg }

// Access returns the data access layer.
func (s *Store) Access() *access.Access { return s.acc }

// Gateway returns the attached backend.
func (s *Store) Gateway() *gateway.Gateway { return s.gw }

// Sink returns the root error sink. The registry, catalog and access sinks
// are its descendants.
func (s *Store) Sink() *errsink.Sink { return s.sink }

// Drain collects and clears every error recorded since the last drain.
func (s *Store) Drain() []types.ErrorRecord {
	return s.sink.Drain(true)
}

// Close detaches the backend. It is safe to call more than once.
func (s *Store) Close() error {
	return s.gw.Detach()
}
