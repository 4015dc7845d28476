// Package registry owns the dataset lifecycle: creating datasets in the data
// table and the catalog together, deleting them, and tracking which of them
// are active for querying. It is the only component that mutates the
// catalog.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/trajstore/internal/catalog"
	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/logging"
	"github.com/mesh-intelligence/trajstore/internal/metrics"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// DefaultBatchSize is the number of points written per INSERT statement.
const DefaultBatchSize = 500

// Lifecycle operation labels.
const (
	opCreate = "create"
	opAppend = "append"
	opDelete = "delete"
	opLoad   = "load"
	opUnload = "unload"
	opResize = "resize"
)

// Provisioner creates the data table when it does not exist yet.
type Provisioner interface {
	EnsureDataTable(ctx context.Context) error
}

// DeleteGuard vetoes the deletion of a dataset that something else still
// depends on by returning a non-nil error.
type DeleteGuard interface {
	CanDelete(ctx context.Context, id string) error
}

// GuardFunc adapts a function to DeleteGuard.
type GuardFunc func(ctx context.Context, id string) error

func (f GuardFunc) CanDelete(ctx context.Context, id string) error {
	return f(ctx, id)
}

// Options configures a Registry.
type Options struct {
	Provisioner Provisioner
	Guards      []DeleteGuard
	BatchSize   int
}

// Registry tracks datasets and the active set. The active set is guarded by
// a mutex, but the catalog and data table are not: callers serialize
// lifecycle operations, typically with one registry per session.
type Registry struct {
	exec   types.Executor
	cat    *catalog.Catalog
	sink   *errsink.Sink
	prov   Provisioner
	guards []DeleteGuard
	batch  int
	log    *slog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// New returns a registry over cat that records into sink. The catalog's
// sink becomes a child of sink.
func New(exec types.Executor, cat *catalog.Catalog, sink *errsink.Sink, opts Options) *Registry {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	sink.AddChild(cat.Sink())
	return &Registry{
		exec:   exec,
		cat:    cat,
		sink:   sink,
		prov:   opts.Provisioner,
		guards: opts.Guards,
		batch:  batch,
		log:    logging.WithComponent("registry"),
		active: make(map[string]struct{}),
	}
}

// Sink returns the sink this registry records into.
func (r *Registry) Sink() *errsink.Sink {
	return r.sink
}

// Catalog returns the catalog this registry mutates.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.cat
}

func observe(op string, ok bool) bool {
	metrics.Lifecycle.WithLabelValues(op, metrics.Outcome(ok)).Inc()
	return ok
}

// Create writes rec's points tagged with a new dataset id and registers the
// dataset in the catalog. When appendByName is set and a dataset named
// rec.Name exists, the points are appended to it instead. It returns the
// dataset id, or false with the causes recorded.
func (r *Registry) Create(ctx context.Context, rec types.DatasetRecord, appendByName bool) (string, bool) {
	if err := types.ValidateDatasetName(rec.Name); err != nil {
		r.sink.Recordf(types.KindIllegalValue, "%v: %q", err, rec.Name)
		return "", observe(opCreate, false)
	}
	if len(rec.Points) == 0 {
		r.sink.Recordf(types.KindIllegalValue, "dataset %s has no points", rec.Name)
		return "", observe(opCreate, false)
	}

	if appendByName {
		ds, found, ok := r.cat.FindByName(ctx, rec.Name)
		if !ok {
			r.sink.Recordf(types.KindNotAdded, "dataset %s", rec.Name)
			return "", observe(opCreate, false)
		}
		if found {
			return r.appendTo(ctx, ds, rec.Points)
		}
	}

	if !r.provision(ctx) {
		r.sink.Recordf(types.KindNotAdded, "dataset %s", rec.Name)
		return "", observe(opCreate, false)
	}

	u, err := uuid.NewV7()
	if err != nil {
		r.sink.Recordf(types.KindNotAdded, "dataset %s: generating id: %v", rec.Name, err)
		return "", observe(opCreate, false)
	}
	id := u.String()

	if !r.writePoints(ctx, id, rec.Points) {
		r.sink.Recordf(types.KindNotAdded, "dataset %s", rec.Name)
		return "", observe(opCreate, false)
	}
	if !r.cat.Add(ctx, rec.Name, id, int64(len(rec.Points))) {
		// Without a catalog row the points would break the sync invariant.
		r.removeRows(ctx, id)
		return "", observe(opCreate, false)
	}

	logging.WithDataset(id).Info("dataset created", "name", rec.Name, "points", len(rec.Points))
	return id, observe(opCreate, true)
}

func (r *Registry) appendTo(ctx context.Context, ds types.Dataset, points []types.Point) (string, bool) {
	if !r.provision(ctx) || !r.writePoints(ctx, ds.ID, points) {
		r.sink.Recordf(types.KindNotUpdated, "append to dataset %s", ds.Name)
		return "", observe(opAppend, false)
	}
	if !r.cat.IncreaseSize(ctx, ds.ID, int64(len(points))) {
		// The rows are in; Resize recounts them.
		return "", observe(opAppend, false)
	}
	logging.WithDataset(ds.ID).Info("points appended", "name", ds.Name, "points", len(points))
	return ds.ID, observe(opAppend, true)
}

func (r *Registry) provision(ctx context.Context) bool {
	if r.prov == nil {
		return true
	}
	if err := r.prov.EnsureDataTable(ctx); err != nil {
		r.sink.RecordErr(err, types.KindConnection)
		return false
	}
	return true
}

// writePoints inserts points on one handle so that a failed batch leaves
// none of them behind.
func (r *Registry) writePoints(ctx context.Context, id string, points []types.Point) bool {
	conn, err := r.exec.Begin(ctx)
	if err != nil {
		r.sink.RecordErr(err, types.KindConnection)
		return false
	}
	defer conn.Close()

	d := r.exec.Dialect()
	for start := 0; start < len(points); start += r.batch {
		end := min(start+r.batch, len(points))
		rows := make([][]string, 0, end-start)
		for _, p := range points[start:end] {
			rows = append(rows, pointRow(id, p))
		}
		if err := conn.Exec(ctx, sqlbuild.Insert(d, types.DataTable, types.PointColumns, rows)); err != nil {
			r.sink.RecordErr(err, types.KindQuery)
			return false
		}
	}
	if err := conn.CommitAndClose(); err != nil {
		r.sink.RecordErr(err, types.KindConnection)
		return false
	}
	return true
}

func pointRow(id string, p types.Point) []string {
	return []string{
		id,
		p.TrajectoryID,
		p.Time.UTC().Format(time.RFC3339Nano),
		formatFloat(p.Lat),
		formatFloat(p.Lon),
		formatFloat(p.Altitude),
		formatFloat(p.Speed),
		p.Label,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (r *Registry) removeRows(ctx context.Context, id string) bool {
	d := r.exec.Dialect()
	if err := r.exec.Write(ctx, sqlbuild.Delete(d, types.DataTable, sqlbuild.Eq(d, types.ColumnDataset, id))); err != nil {
		r.sink.RecordErr(err, types.KindConnection)
		return false
	}
	return true
}

// Load adds id to the active set. Loading an active id does nothing.
func (r *Registry) Load(ctx context.Context, id string) bool {
	if r.isActive(id) {
		return true
	}
	if !r.known(ctx, id, types.KindNotFound, "") {
		return observe(opLoad, false)
	}
	r.mu.Lock()
	r.active[id] = struct{}{}
	r.mu.Unlock()
	return observe(opLoad, true)
}

// Unload removes id from the active set. Unloading an inactive id does
// nothing.
func (r *Registry) Unload(id string) bool {
	r.mu.Lock()
	_, was := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()
	if was {
		observe(opUnload, true)
	}
	return true
}

// known reports whether id is in the catalog. An absent id is recorded
// under missing. A failed read is already recorded; failed, when set, adds
// a record naming the dataset.
func (r *Registry) known(ctx context.Context, id string, missing, failed types.ErrorKind) bool {
	_, found, ok := r.cat.Lookup(ctx, id)
	switch {
	case !ok:
		if failed != "" {
			r.sink.Recordf(failed, "dataset %s", id)
		}
	case !found:
		r.sink.Recordf(missing, "dataset %s does not exist", id)
	}
	return found
}

func (r *Registry) isActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[id]
	return ok
}

// Delete removes the dataset's points, then its catalog row, then drops it
// from the active set. A failure before the catalog step leaves the dataset
// intact.
func (r *Registry) Delete(ctx context.Context, id string) bool {
	if !r.known(ctx, id, types.KindNotDeleted, types.KindNotDeleted) {
		return observe(opDelete, false)
	}
	for _, g := range r.guards {
		if err := g.CanDelete(ctx, id); err != nil {
			r.sink.Recordf(types.KindInUse, "dataset %s: %v", id, err)
			return observe(opDelete, false)
		}
	}

	exists, err := r.cat.DataTableExists(ctx)
	if err != nil {
		r.sink.RecordErr(err, types.KindConnection)
		r.sink.Recordf(types.KindNotDeleted, "dataset %s", id)
		return observe(opDelete, false)
	}
	if exists && !r.removeRows(ctx, id) {
		r.sink.Recordf(types.KindNotDeleted, "points of dataset %s", id)
		return observe(opDelete, false)
	}
	if !r.cat.Remove(ctx, id) {
		return observe(opDelete, false)
	}

	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
	logging.WithDataset(id).Info("dataset deleted")
	return observe(opDelete, true)
}

// ActiveIDs returns the active ids, sorted.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Datasets returns every catalog entry sorted by name. A nil slice with a
// nil error means the catalog could not be read.
func (r *Registry) Datasets(ctx context.Context) ([]types.Dataset, error) {
	all, err := r.cat.All(ctx)
	if err != nil || all == nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

// SizeMap maps the name of every catalog entry, active or not, to its size.
func (r *Registry) SizeMap(ctx context.Context) (map[string]int64, error) {
	all, err := r.cat.All(ctx)
	if err != nil || all == nil {
		return nil, err
	}
	sizes := make(map[string]int64, len(all))
	for _, ds := range all {
		sizes[ds.Name] = ds.Size
	}
	return sizes, nil
}

// Resize recounts the points of id and stores the count in the catalog.
func (r *Registry) Resize(ctx context.Context, id string) (int64, bool) {
	if !r.known(ctx, id, types.KindNotFound, types.KindNotUpdated) {
		return 0, observe(opResize, false)
	}

	var n int64
	exists, err := r.cat.DataTableExists(ctx)
	if err != nil {
		r.sink.RecordErr(err, types.KindConnection)
		return 0, observe(opResize, false)
	}
	if exists {
		d := r.exec.Dialect()
		res, err := r.exec.Read(ctx, sqlbuild.Count(d, types.DataTable, sqlbuild.Eq(d, types.ColumnDataset, id)))
		if err != nil {
			r.sink.RecordErr(err, types.KindConnection)
			return 0, observe(opResize, false)
		}
		var ok bool
		if res.Len() == 1 {
			n, ok = types.AsInt64(res.Rows[0][0])
		}
		if !ok {
			r.sink.Recordf(types.KindNotUpdated, "size of dataset %s: unreadable count", id)
			return 0, observe(opResize, false)
		}
	}
	if !r.cat.AdjustSize(ctx, id, n) {
		return 0, observe(opResize, false)
	}
	return n, observe(opResize, true)
}
