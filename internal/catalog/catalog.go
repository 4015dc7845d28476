// Package catalog maintains the dataset catalog table: one (name, id, size)
// row per dataset, kept in step with the dataset_id values present in the
// data table.
//
// No transaction spans the catalog and the data table, so the correspondence
// between them is checked by ValidateSync rather than enforced. Operational
// failures are recorded into the catalog's error sink and reported through
// the return value. A catalog table whose columns differ from (name, id,
// size) is a fatal shape violation and is returned as a CatalogShapeError
// by New, Bootstrap, All, ListIDs and ValidateSync. The single-row operations
// report through a bool, so they record the violation instead; either way
// the catalog drops its verified flag so the next New bootstraps again and
// fails.
package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/logging"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// Verified records that the catalog table has been confirmed to exist.
// Catalogs sharing one Verified probe the backend only until the first of
// them succeeds. The zero value is unverified.
type Verified struct {
	ok atomic.Bool
}

// IsSet reports whether the catalog table was confirmed. A nil Verified is
// never set.
func (v *Verified) IsSet() bool {
	return v != nil && v.ok.Load()
}

func (v *Verified) set() {
	if v != nil {
		v.ok.Store(true)
	}
}

func (v *Verified) reset() {
	if v != nil {
		v.ok.Store(false)
	}
}

var processVerified sync.Map // location -> *Verified

// VerifiedFor returns the process-wide flag for the database at location.
// Every call with the same location returns the same flag.
func VerifiedFor(location string) *Verified {
	v, _ := processVerified.LoadOrStore(location, &Verified{})
	return v.(*Verified)
}

// Options controls catalog construction.
type Options struct {
	// AssumeBootstrapped skips the existence probe entirely.
	AssumeBootstrapped bool

	// Verified, when non-nil, is consulted before probing and set after a
	// successful bootstrap.
	Verified *Verified
}

// Catalog is the dataset catalog.
type Catalog struct {
	exec     types.Executor
	sink     *errsink.Sink
	table    string
	verified *Verified
	log      *slog.Logger
}

// New returns a catalog over exec that records into sink. Unless opts skip
// it, New bootstraps the catalog table and returns any error from doing so.
func New(ctx context.Context, exec types.Executor, sink *errsink.Sink, opts Options) (*Catalog, error) {
	c := &Catalog{
		exec:     exec,
		sink:     sink,
		table:    types.MetaTable,
		verified: opts.Verified,
		log:      logging.WithTable(types.MetaTable),
	}
	if opts.AssumeBootstrapped || opts.Verified.IsSet() {
		return c, nil
	}
	if err := c.Bootstrap(ctx); err != nil {
		return nil, err
	}
	opts.Verified.set()
	return c, nil
}

// Sink returns the sink this catalog records into.
func (c *Catalog) Sink() *errsink.Sink {
	return c.sink
}

// Bootstrap creates the catalog table when the backend does not list it and
// checks its shape when it does.
func (c *Catalog) Bootstrap(ctx context.Context) error {
	d := c.exec.Dialect()
	exists, err := c.exec.TableExists(ctx, c.table)
	if err != nil {
		return errors.Wrap(err, "probing catalog table")
	}
	if !exists {
		if err := c.exec.Write(ctx, sqlbuild.CreateCatalog(d, c.table)); err != nil {
			return errors.Wrap(err, "creating catalog table")
		}
		c.log.Info("catalog table created")
		return nil
	}
	res, err := c.exec.Read(ctx, sqlbuild.Probe(d, c.table))
	if err != nil {
		return errors.Wrap(err, "probing catalog columns")
	}
	return c.checkShape(res.Columns)
}

func (c *Catalog) checkShape(cols []string) error {
	if len(cols) != len(types.MetaColumns) {
		return errors.Newf(types.KindCatalogShape,
			"catalog table %s has %d columns, want %d", c.table, len(cols), len(types.MetaColumns))
	}
	for i, want := range types.MetaColumns {
		if cols[i] != want {
			return errors.Newf(types.KindCatalogShape,
				"catalog table %s column %d is %q, want %q", c.table, i, cols[i], want)
		}
	}
	return nil
}

// read returns the catalog rows matching where. A nil slice with a nil
// error means the read failed and was recorded.
func (c *Catalog) read(ctx context.Context, where string) ([]types.Dataset, error) {
	q := sqlbuild.Select{Table: c.table, Where: where}.SQL(c.exec.Dialect())
	res, err := c.exec.Read(ctx, q)
	if err != nil {
		c.sink.RecordErr(err, types.KindConnection)
		return nil, nil
	}
	if err := c.checkShape(res.Columns); err != nil {
		c.verified.reset()
		c.log.Error("catalog shape violation", "error", err)
		return nil, err
	}
	out := make([]types.Dataset, 0, res.Len())
	for _, row := range res.Rows {
		size, ok := types.AsInt64(row[2])
		if !ok {
			size = types.SizeUninitialized
		}
		out = append(out, types.Dataset{
			Name: types.AsString(row[0]),
			ID:   types.AsString(row[1]),
			Size: size,
		})
	}
	return out, nil
}

// Lookup finds the entry for id without recording its absence. ok is false
// when the catalog could not be read; the cause has been recorded.
func (c *Catalog) Lookup(ctx context.Context, id string) (ds types.Dataset, found, ok bool) {
	return c.first(ctx, sqlbuild.Eq(c.exec.Dialect(), types.MetaColumnID, id))
}

// FindByName returns the first entry named name, with the same results as
// Lookup.
func (c *Catalog) FindByName(ctx context.Context, name string) (ds types.Dataset, found, ok bool) {
	return c.first(ctx, sqlbuild.Eq(c.exec.Dialect(), types.MetaColumnName, name))
}

func (c *Catalog) first(ctx context.Context, where string) (types.Dataset, bool, bool) {
	rows, err := c.read(ctx, where)
	if err != nil {
		c.sink.RecordErr(err, types.KindCatalogShape)
		return types.Dataset{}, false, false
	}
	if rows == nil {
		return types.Dataset{}, false, false
	}
	if len(rows) == 0 {
		return types.Dataset{}, false, true
	}
	return rows[0], true, true
}

// All returns every catalog entry. A nil slice with a nil error means the
// read failed and was recorded; an error is a shape violation.
func (c *Catalog) All(ctx context.Context) ([]types.Dataset, error) {
	return c.read(ctx, "")
}

// ListIDs returns every catalog id in table order. A nil slice with a nil
// error means the read failed and was recorded; an error is a shape
// violation.
func (c *Catalog) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := c.read(ctx, "")
	if err != nil || rows == nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, ds := range rows {
		ids[i] = ds.ID
	}
	return ids, nil
}

// Get returns the entry for id. A missing id records a NotFoundError.
func (c *Catalog) Get(ctx context.Context, id string) (types.Dataset, bool) {
	ds, found, ok := c.Lookup(ctx, id)
	if !ok {
		return types.Dataset{}, false
	}
	if !found {
		c.sink.Recordf(types.KindNotFound, "dataset %s does not exist", id)
		return types.Dataset{}, false
	}
	return ds, true
}

// Contains reports whether id has a catalog entry. Read failures are
// recorded and reported as absent.
func (c *Catalog) Contains(ctx context.Context, id string) bool {
	_, found, _ := c.Lookup(ctx, id)
	return found
}

// Add inserts a catalog entry. It fails for the uninitialized size, a
// negative size, an invalid name, or an id that is already present.
func (c *Catalog) Add(ctx context.Context, name, id string, size int64) bool {
	if size == types.SizeUninitialized || size < 0 {
		c.sink.Recordf(types.KindIllegalValue, "size %d is not valid for dataset %s", size, id)
		return false
	}
	if err := types.ValidateDatasetName(name); err != nil {
		c.sink.Recordf(types.KindIllegalValue, "%v: %q", err, name)
		return false
	}
	if id == "" {
		c.sink.Recordf(types.KindIllegalValue, "%v: empty", types.ErrInvalidID)
		return false
	}

	_, found, ok := c.Lookup(ctx, id)
	if !ok {
		c.sink.Recordf(types.KindNotAdded, "dataset %s (%s)", name, id)
		return false
	}
	if found {
		c.sink.Recordf(types.KindCollision, "dataset id %s already exists", id)
		return false
	}

	d := c.exec.Dialect()
	stmt := sqlbuild.Insert(d, c.table, types.MetaColumns,
		[][]string{{name, id, strconv.FormatInt(size, 10)}})
	if err := c.exec.Write(ctx, stmt); err != nil {
		c.sink.RecordErr(err, types.KindConnection)
		c.sink.Recordf(types.KindNotAdded, "dataset %s (%s)", name, id)
		return false
	}
	return true
}

// AdjustSize sets the size of id to size.
func (c *Catalog) AdjustSize(ctx context.Context, id string, size int64) bool {
	if size < 0 {
		c.sink.Recordf(types.KindIllegalValue, "size %d is not valid for dataset %s", size, id)
		return false
	}
	_, found, ok := c.Lookup(ctx, id)
	if !ok {
		c.sink.Recordf(types.KindNotUpdated, "size of dataset %s", id)
		return false
	}
	if !found {
		c.sink.Recordf(types.KindNotFound, "dataset %s does not exist", id)
		c.sink.Recordf(types.KindNotUpdated, "size of dataset %s", id)
		return false
	}

	d := c.exec.Dialect()
	stmt := sqlbuild.Update(d, c.table, types.MetaColumnSize, strconv.FormatInt(size, 10),
		sqlbuild.Eq(d, types.MetaColumnID, id))
	if err := c.exec.Write(ctx, stmt); err != nil {
		c.sink.RecordErr(err, types.KindConnection)
		c.sink.Recordf(types.KindNotUpdated, "size of dataset %s", id)
		return false
	}
	return true
}

// IncreaseSize adds delta to the size of id. The current size must be
// readable.
func (c *Catalog) IncreaseSize(ctx context.Context, id string, delta int64) bool {
	ds, ok := c.Get(ctx, id)
	if !ok || ds.Size == types.SizeUninitialized {
		c.sink.Recordf(types.KindNotUpdated, "size of dataset %s is unreadable", id)
		return false
	}
	return c.AdjustSize(ctx, id, ds.Size+delta)
}

// Remove deletes the entry for id. A missing id records a NotDeletedError.
func (c *Catalog) Remove(ctx context.Context, id string) bool {
	_, found, ok := c.Lookup(ctx, id)
	if !ok {
		c.sink.Recordf(types.KindNotDeleted, "dataset %s", id)
		return false
	}
	if !found {
		c.sink.Recordf(types.KindNotDeleted, "dataset %s does not exist", id)
		return false
	}

	d := c.exec.Dialect()
	if err := c.exec.Write(ctx, sqlbuild.Delete(d, c.table, sqlbuild.Eq(d, types.MetaColumnID, id))); err != nil {
		c.sink.RecordErr(err, types.KindConnection)
		c.sink.Recordf(types.KindNotDeleted, "dataset %s", id)
		return false
	}
	return true
}

// DataTableExists reports whether the data table is present.
func (c *Catalog) DataTableExists(ctx context.Context) (bool, error) {
	return c.exec.TableExists(ctx, types.DataTable)
}
