// Package access runs filtered reads against the data table, scoped to the
// datasets that are currently active.
//
// Every query is restricted to dataset_id IN (active ids). An empty active
// set renders a predicate that matches nothing, so reads return zero rows
// rather than failing. Filters are caller-supplied SQL fragments and are
// added verbatim.
package access

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/logging"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// ActiveSource supplies the ids of the active datasets.
type ActiveSource interface {
	ActiveIDs() []string
}

// Access is the read side of the store.
type Access struct {
	exec   types.Executor
	active ActiveSource
	sink   *errsink.Sink
	log    *slog.Logger

	mu    sync.Mutex
	point types.Filter
	traj  types.Filter
}

// New returns an Access reading through exec and recording into sink.
func New(exec types.Executor, active ActiveSource, sink *errsink.Sink) *Access {
	return &Access{
		exec:   exec,
		active: active,
		sink:   sink,
		log:    logging.WithComponent("access"),
	}
}

// Sink returns the sink this Access records into.
func (a *Access) Sink() *errsink.Sink {
	return a.sink
}

// SetPointFilter replaces the point filter. Empty text clears it whatever
// the flags. With negate the stored text is NOT(text); the negation is fixed
// here and not re-evaluated later.
func (a *Access) SetPointFilter(text string, enabled, negate bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if text == "" {
		a.point = types.Filter{}
		return
	}
	if negate {
		text = sqlbuild.Not(text)
	}
	a.point = types.Filter{Text: text, Enabled: enabled}
}

// SetTrajectoryFilter replaces the trajectory filter. Empty text clears it.
func (a *Access) SetTrajectoryFilter(text string, enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if text == "" {
		a.traj = types.Filter{}
		return
	}
	a.traj = types.Filter{Text: text, Enabled: enabled}
}

// PointFilter returns the current point filter.
func (a *Access) PointFilter() types.Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.point
}

// TrajectoryFilter returns the current trajectory filter.
func (a *Access) TrajectoryFilter() types.Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.traj
}

// Data returns columns of every active point passing the point filter. A
// nil result means the read failed and the cause was recorded.
func (a *Access) Data(ctx context.Context, columns ...string) *types.Result {
	ids := a.active.ActiveIDs()
	where := a.scope(ids)
	if f := a.PointFilter(); f.Active() {
		where = sqlbuild.And(where, f.Text)
	}
	return a.read(ctx, ids, sqlbuild.Select{Columns: columns, Table: types.DataTable, Where: where})
}

// Distinct returns the distinct values of column across the active
// datasets. The point filter is never applied.
func (a *Access) Distinct(ctx context.Context, column string) *types.Result {
	ids := a.active.ActiveIDs()
	return a.read(ctx, ids, sqlbuild.Select{
		Columns:  []string{column},
		Table:    types.DataTable,
		Distinct: true,
		Where:    a.scope(ids),
		OrderBy:  []string{column},
	})
}

// ByColumnSelection returns columns of the active points whose column value
// is one of values. The point filter is added when applyFilter is set and
// the filter is active.
func (a *Access) ByColumnSelection(ctx context.Context, columns, values []string, column string, applyFilter bool) *types.Result {
	ids := a.active.ActiveIDs()
	d := a.exec.Dialect()
	where := sqlbuild.And(a.scope(ids), sqlbuild.In(d, column, values))
	if f := a.PointFilter(); applyFilter && f.Active() {
		where = sqlbuild.And(where, f.Text)
	}
	return a.read(ctx, ids, sqlbuild.Select{Columns: columns, Table: types.DataTable, Where: where})
}

// TrajectoryIDs returns the distinct trajectory ids of the active datasets,
// restricted by the trajectory filter when it is enabled.
func (a *Access) TrajectoryIDs(ctx context.Context) ([]string, bool) {
	ids := a.active.ActiveIDs()
	where := a.scope(ids)
	if f := a.TrajectoryFilter(); f.Active() {
		where = sqlbuild.And(where, f.Text)
	}
	res := a.read(ctx, ids, sqlbuild.Select{
		Columns:  []string{types.ColumnTrajectory},
		Table:    types.DataTable,
		Distinct: true,
		Where:    where,
		OrderBy:  []string{types.ColumnTrajectory},
	})
	if res == nil {
		return nil, false
	}
	return res.Strings(0), true
}

// Columns returns the data table's column names. Before the table exists
// it returns the columns the table will be created with.
func (a *Access) Columns(ctx context.Context) ([]string, bool) {
	exists, err := a.exec.TableExists(ctx, types.DataTable)
	if err != nil {
		a.sink.RecordErr(err, types.KindConnection)
		return nil, false
	}
	if !exists {
		return append([]string(nil), types.PointColumns...), true
	}
	res, err := a.exec.Read(ctx, sqlbuild.Probe(a.exec.Dialect(), types.DataTable))
	if err != nil {
		a.sink.RecordErr(err, types.KindConnection)
		return nil, false
	}
	return res.Columns, true
}

func (a *Access) scope(ids []string) string {
	return sqlbuild.In(a.exec.Dialect(), types.ColumnDataset, ids)
}

// read runs sel. With no active datasets and no data table yet, it returns
// an empty result without querying.
func (a *Access) read(ctx context.Context, ids []string, sel sqlbuild.Select) *types.Result {
	if len(ids) == 0 {
		exists, err := a.exec.TableExists(ctx, types.DataTable)
		if err != nil {
			a.sink.RecordErr(err, types.KindConnection)
			return nil
		}
		if !exists {
			return &types.Result{Columns: sel.Columns, Rows: [][]any{}}
		}
	}

	q := sel.SQL(a.exec.Dialect())
	res, err := a.exec.Read(ctx, q)
	if err != nil {
		a.sink.RecordErr(err, types.KindConnection)
		a.log.Debug("read failed", "query", q, "err", err)
		return nil
	}
	return res
}
