package trajstore

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/trajstore/internal/registry"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

func open(t *testing.T, opts Options) *Store {
	t.Helper()
	store, err := Open(context.Background(), types.Config{
		Backend: types.BackendSQLite,
		DataDir: t.TempDir(),
	}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func tripPoints() []types.Point {
	base := time.Date(2024, 5, 4, 7, 30, 0, 0, time.UTC)
	return []types.Point{
		{TrajectoryID: "trip-1", Time: base, Lat: 45.50, Lon: -73.57},
		{TrajectoryID: "trip-1", Time: base.Add(time.Minute), Lat: 45.51, Lon: -73.58},
		{TrajectoryID: "trip-2", Time: base.Add(2 * time.Minute), Lat: 45.52, Lon: -73.59},
	}
}

func countRows(t *testing.T, s *Store, table string) int64 {
	t.Helper()
	res, err := s.Gateway().Read(context.Background(), sqlbuild.Count(s.Gateway().Dialect(), table, ""))
	require.NoError(t, err)
	n, ok := types.AsInt64(res.Rows[0][0])
	require.True(t, ok)
	return n
}

func TestStore_TripsScenario(t *testing.T) {
	ctx := context.Background()
	s := open(t, Options{})
	reg, acc := s.Registry(), s.Access()

	id, ok := reg.Create(ctx, types.DatasetRecord{Name: "trips", Points: tripPoints()}, false)
	require.True(t, ok, "records: %v", s.Drain())
	assert.Empty(t, reg.ActiveIDs())
	assert.Equal(t, 0, acc.Data(ctx, types.ColumnLat, types.ColumnLon).Len())

	require.True(t, reg.Load(ctx, id))
	res := acc.Data(ctx, types.ColumnLat, types.ColumnLon)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Len())
	assert.Equal(t, []string{types.ColumnLat, types.ColumnLon}, res.Columns)

	require.True(t, reg.Delete(ctx, id))
	assert.Equal(t, int64(0), countRows(t, s, types.MetaTable))
	assert.Equal(t, int64(0), countRows(t, s, types.DataTable))
	assert.Empty(t, reg.ActiveIDs())

	ok, err := s.Catalog().ValidateSync(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, s.Drain())
}

func TestStore_SinkTreeCollectsEveryComponent(t *testing.T) {
	ctx := context.Background()
	s := open(t, Options{})

	assert.False(t, s.Registry().Load(ctx, "missing"))
	_, ok := s.Catalog().Get(ctx, "missing")
	assert.False(t, ok)
	s.Access().SetPointFilter("no_such_column = 1", true, false)
	id, ok := s.Registry().Create(ctx, types.DatasetRecord{Name: "trips", Points: tripPoints()}, false)
	require.True(t, ok)
	require.True(t, s.Registry().Load(ctx, id))
	assert.Nil(t, s.Access().Data(ctx, types.ColumnLat))

	require.True(t, s.Sink().HasErrors())
	got := map[types.ErrorKind]bool{}
	for _, r := range s.Drain() {
		got[r.Kind] = true
	}
	assert.True(t, got[types.KindNotFound])
	assert.True(t, got[types.KindQuery])
	assert.False(t, s.Sink().HasErrors())
	assert.Empty(t, s.Drain())
}

func TestStore_ReopenKeepsDatasets(t *testing.T) {
	ctx := context.Background()
	cfg := types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}

	s, err := Open(ctx, cfg, Options{})
	require.NoError(t, err)
	id, ok := s.Registry().Create(ctx, types.DatasetRecord{Name: "trips", Points: tripPoints()}, false)
	require.True(t, ok)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg, Options{})
	require.NoError(t, err)
	defer s.Close()

	sizes, err := s.Registry().SizeMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"trips": 3}, sizes)
	assert.True(t, s.Catalog().Contains(ctx, id))
	assert.Empty(t, s.Registry().ActiveIDs())
}

func TestStore_SeparateDSNsBootstrapSeparately(t *testing.T) {
	ctx := context.Background()
	for _, dir := range []string{t.TempDir(), t.TempDir()} {
		s, err := Open(ctx, types.Config{
			Backend: types.BackendSQLite,
			DSN:     "file:" + filepath.Join(dir, "traj.db"),
		}, Options{})
		require.NoError(t, err)

		_, ok := s.Registry().Create(ctx, types.DatasetRecord{Name: "trips", Points: tripPoints()}, false)
		assert.True(t, ok, "records: %v", s.Drain())
		assert.Equal(t, int64(1), countRows(t, s, types.MetaTable))
		require.NoError(t, s.Close())
	}
}

func TestStore_DeleteGuard(t *testing.T) {
	ctx := context.Background()
	pinned := map[string]bool{}
	s := open(t, Options{Guards: []registry.DeleteGuard{
		registry.GuardFunc(func(ctx context.Context, id string) error {
			if pinned[id] {
				return stderrors.New("pinned")
			}
			return nil
		}),
	}})

	id, ok := s.Registry().Create(ctx, types.DatasetRecord{Name: "trips", Points: tripPoints()}, false)
	require.True(t, ok)
	pinned[id] = true

	assert.False(t, s.Registry().Delete(ctx, id))
	records := s.Drain()
	require.Len(t, records, 1)
	assert.Equal(t, types.KindInUse, records[0].Kind)

	pinned[id] = false
	assert.True(t, s.Registry().Delete(ctx, id))
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), types.Config{Backend: "oracle"}, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBackendUnknown)
}
