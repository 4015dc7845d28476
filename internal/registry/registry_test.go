package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/trajstore/internal/catalog"
	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/gateway"
	"github.com/mesh-intelligence/trajstore/internal/gateway/gatewaytest"
	"github.com/mesh-intelligence/trajstore/internal/metrics"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

func newRegistry(t *testing.T, exec types.Executor, g *gateway.Gateway, opts Options) (*Registry, *errsink.Sink) {
	t.Helper()
	cat, err := catalog.New(context.Background(), exec, errsink.New("catalog"), catalog.Options{})
	require.NoError(t, err)
	if opts.Provisioner == nil {
		opts.Provisioner = g
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = 2
	}
	sink := errsink.New("registry")
	return New(exec, cat, sink, opts), sink
}

func points(n int) []types.Point {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	out := make([]types.Point, n)
	for i := range out {
		out[i] = types.Point{
			TrajectoryID: fmt.Sprintf("t%d", i%2),
			Time:         base.Add(time.Duration(i) * time.Minute),
			Lat:          45.5 + float64(i)/1000,
			Lon:          -73.6,
		}
	}
	return out
}

func kinds(records []types.ErrorRecord) []types.ErrorKind {
	out := make([]types.ErrorKind, len(records))
	for i, r := range records {
		out[i] = r.Kind
	}
	return out
}

// markers returns the distinct dataset ids in the data table, sorted.
func markers(t *testing.T, g *gateway.Gateway) []string {
	t.Helper()
	ctx := context.Background()
	exists, err := g.TableExists(ctx, types.DataTable)
	require.NoError(t, err)
	if !exists {
		return []string{}
	}
	res, err := g.Read(ctx, sqlbuild.Select{
		Columns:  []string{types.ColumnDataset},
		Table:    types.DataTable,
		Distinct: true,
		OrderBy:  []string{types.ColumnDataset},
	}.SQL(g.Dialect()))
	require.NoError(t, err)
	return res.Strings(0)
}

func countPoints(t *testing.T, g *gateway.Gateway) int64 {
	t.Helper()
	res, err := g.Read(context.Background(), sqlbuild.Count(g.Dialect(), types.DataTable, ""))
	require.NoError(t, err)
	n, ok := types.AsInt64(res.Rows[0][0])
	require.True(t, ok)
	return n
}

func assertInSync(t *testing.T, r *Registry, g *gateway.Gateway) {
	t.Helper()
	ctx := context.Background()
	ids, err := r.Catalog().ListIDs(ctx)
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, markers(t, g), ids)

	ok, err := r.Catalog().ValidateSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, r.Sink().HasErrors(), "records: %v", r.Sink().Drain(true))
}

func TestRegistry_Create(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok, "records: %v", sink.Drain(true))
	assert.NotEmpty(t, id)

	ds, ok := r.Catalog().Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, types.Dataset{ID: id, Name: "trips", Size: 3}, ds)
	assert.Equal(t, int64(3), countPoints(t, g))
	assert.Empty(t, r.ActiveIDs())
}

func TestRegistry_CreateRejectsInvalidRecords(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})

	_, ok := r.Create(ctx, types.DatasetRecord{Name: "bad/name", Points: points(1)}, false)
	assert.False(t, ok)
	assert.Equal(t, []types.ErrorKind{types.KindIllegalValue}, kinds(sink.Drain(true)))

	_, ok = r.Create(ctx, types.DatasetRecord{Name: "empty"}, false)
	assert.False(t, ok)
	assert.Equal(t, []types.ErrorKind{types.KindIllegalValue}, kinds(sink.Drain(true)))

	assert.Empty(t, markers(t, g))
}

func TestRegistry_SyncInvariantAcrossLifecycle(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, _ := newRegistry(t, g, g, Options{})
	assertInSync(t, r, g)

	var ids []string
	for i, name := range []string{"a", "b", "c"} {
		id, ok := r.Create(ctx, types.DatasetRecord{Name: name, Points: points(i + 1)}, false)
		require.True(t, ok)
		ids = append(ids, id)
		assertInSync(t, r, g)
	}

	require.True(t, r.Delete(ctx, ids[1]))
	assertInSync(t, r, g)

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "d", Points: points(5)}, false)
	require.True(t, ok)
	assertInSync(t, r, g)

	for _, id := range []string{ids[0], ids[2], id} {
		require.True(t, r.Delete(ctx, id))
		assertInSync(t, r, g)
	}
	assert.Empty(t, markers(t, g))
}

func TestRegistry_LoadUnloadIdempotent(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})
	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)

	require.True(t, r.Load(ctx, id))
	require.True(t, r.Load(ctx, id))
	assert.Equal(t, []string{id}, r.ActiveIDs())
	assert.False(t, sink.HasErrors())

	require.True(t, r.Unload(id))
	require.True(t, r.Unload(id))
	require.True(t, r.Unload("never-loaded"))
	assert.Empty(t, r.ActiveIDs())
	assert.False(t, sink.HasErrors())
}

func TestRegistry_LoadUnknown(t *testing.T) {
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})

	assert.False(t, r.Load(context.Background(), "missing"))
	assert.Equal(t, []types.ErrorKind{types.KindNotFound}, kinds(sink.Drain(true)))
	assert.Empty(t, r.ActiveIDs())
}

func TestRegistry_AppendByName(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)

	again, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(2)}, true)
	require.True(t, ok, "records: %v", sink.Drain(true))
	assert.Equal(t, id, again)

	ds, ok := r.Catalog().Get(ctx, id)
	require.True(t, ok)
	assert.Equal(t, int64(5), ds.Size)

	// Append only applies when the name exists.
	other, ok := r.Create(ctx, types.DatasetRecord{Name: "walks", Points: points(1)}, true)
	require.True(t, ok)
	assert.NotEqual(t, id, other)
	assertInSync(t, r, g)
}

func TestRegistry_AppendFailsWhenNameLookupFails(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	f := gatewaytest.NewFaulty(g)
	r, sink := newRegistry(t, f, g, Options{})

	_, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)

	f.Fail(`"name" = 'trips'`)
	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(2)}, true)
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.ElementsMatch(t, []types.ErrorKind{types.KindQuery, types.KindNotAdded}, kinds(sink.Drain(true)))

	f.Heal()
	all, err := r.Catalog().All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3), all[0].Size)
	assert.Equal(t, int64(3), countPoints(t, g))
}

func TestRegistry_CatalogFailureRemovesPoints(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	f := gatewaytest.NewFaulty(g)
	r, sink := newRegistry(t, f, g, Options{})
	f.Fail(`INSERT INTO "dataset_meta"`)

	_, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	assert.False(t, ok)
	got := kinds(sink.Drain(true))
	assert.Contains(t, got, types.KindQuery)
	assert.Contains(t, got, types.KindNotAdded)

	f.Heal()
	assert.Empty(t, markers(t, g))
	assertInSync(t, r, g)
}

func TestRegistry_FailedBatchWritesNothing(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	f := gatewaytest.NewFaulty(g)
	r, sink := newRegistry(t, f, g, Options{BatchSize: 2})

	pts := points(3)
	pts[2].TrajectoryID = "broken-trajectory"
	f.Fail("broken-trajectory")

	_, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: pts}, false)
	assert.False(t, ok)
	assert.Equal(t, []types.ErrorKind{types.KindQuery, types.KindNotAdded}, kinds(sink.Drain(true)))

	f.Heal()
	assert.Equal(t, int64(0), countPoints(t, g))
	assertInSync(t, r, g)
}

func TestRegistry_DeleteUnknown(t *testing.T) {
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})

	assert.False(t, r.Delete(context.Background(), "missing"))
	assert.Equal(t, []types.ErrorKind{types.KindNotDeleted}, kinds(sink.Drain(true)))
}

func TestRegistry_LookupFailureIsNotReportedAsMissing(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	f := gatewaytest.NewFaulty(g)
	r, sink := newRegistry(t, f, g, Options{})
	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(2)}, false)
	require.True(t, ok)

	f.Fail(`FROM "dataset_meta"`)
	assert.False(t, r.Delete(ctx, id))
	records := sink.Drain(true)
	assert.ElementsMatch(t, []types.ErrorKind{types.KindQuery, types.KindNotDeleted}, kinds(records))
	for _, rec := range records {
		assert.NotContains(t, rec.Detail, "does not exist")
	}

	assert.False(t, r.Load(ctx, id))
	assert.Equal(t, []types.ErrorKind{types.KindQuery}, kinds(sink.Drain(true)))

	f.Heal()
	assert.True(t, r.Catalog().Contains(ctx, id))
	assert.Equal(t, int64(2), countPoints(t, g))
}

func TestRegistry_DeleteGuardVetoes(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	guard := GuardFunc(func(ctx context.Context, id string) error {
		return stderrors.New("referenced by a saved analysis")
	})
	r, sink := newRegistry(t, g, g, Options{Guards: []DeleteGuard{guard}})

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)

	assert.False(t, r.Delete(ctx, id))
	assert.Equal(t, []types.ErrorKind{types.KindInUse}, kinds(sink.Drain(true)))
	assert.True(t, r.Catalog().Contains(ctx, id))
	assertInSync(t, r, g)
}

func TestRegistry_DeletePointFailureKeepsCatalogRow(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	f := gatewaytest.NewFaulty(g)
	r, sink := newRegistry(t, f, g, Options{})

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)
	require.True(t, r.Load(ctx, id))

	f.Fail(`DELETE FROM "points"`)
	assert.False(t, r.Delete(ctx, id))
	assert.Equal(t, []types.ErrorKind{types.KindQuery, types.KindNotDeleted}, kinds(sink.Drain(true)))
	assert.Equal(t, []string{id}, r.ActiveIDs())

	f.Heal()
	assert.True(t, r.Catalog().Contains(ctx, id))
	assertInSync(t, r, g)
}

func TestRegistry_DeleteDeactivates(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, _ := newRegistry(t, g, g, Options{})

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)
	require.True(t, r.Load(ctx, id))

	require.True(t, r.Delete(ctx, id))
	assert.Empty(t, r.ActiveIDs())
	assert.False(t, r.Load(ctx, id))
}

func TestRegistry_SizeMapAndDatasets(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, _ := newRegistry(t, g, g, Options{})

	walks, ok := r.Create(ctx, types.DatasetRecord{Name: "walks", Points: points(2)}, false)
	require.True(t, ok)
	trips, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)
	require.True(t, r.Load(ctx, trips))

	sizes, err := r.SizeMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"trips": 3, "walks": 2}, sizes)

	all, err := r.Datasets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Dataset{
		{ID: trips, Name: "trips", Size: 3},
		{ID: walks, Name: "walks", Size: 2},
	}, all)
}

func TestRegistry_Resize(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, sink := newRegistry(t, g, g, Options{})

	id, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(3)}, false)
	require.True(t, ok)
	require.True(t, r.Catalog().AdjustSize(ctx, id, 99))

	n, ok := r.Resize(ctx, id)
	require.True(t, ok)
	assert.Equal(t, int64(3), n)
	ds, _ := r.Catalog().Get(ctx, id)
	assert.Equal(t, int64(3), ds.Size)

	_, ok = r.Resize(ctx, "missing")
	assert.False(t, ok)
	assert.Equal(t, []types.ErrorKind{types.KindNotFound}, kinds(sink.Drain(true)))
}

func TestRegistry_LifecycleMetrics(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	r, _ := newRegistry(t, g, g, Options{})

	created := metrics.Lifecycle.WithLabelValues(opCreate, metrics.OutcomeOK)
	failed := metrics.Lifecycle.WithLabelValues(opDelete, metrics.OutcomeError)
	beforeCreate := testutil.ToFloat64(created)
	beforeFailed := testutil.ToFloat64(failed)

	_, ok := r.Create(ctx, types.DatasetRecord{Name: "trips", Points: points(1)}, false)
	require.True(t, ok)
	assert.False(t, r.Delete(ctx, "missing"))

	assert.Equal(t, beforeCreate+1, testutil.ToFloat64(created))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}
