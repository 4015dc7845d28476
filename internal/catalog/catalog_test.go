package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/gateway"
	"github.com/mesh-intelligence/trajstore/internal/gateway/gatewaytest"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

const (
	idA = "0190d6f4-0000-7000-8000-00000000000a"
	idB = "0190d6f4-0000-7000-8000-00000000000b"
)

func newCatalog(t *testing.T) (*Catalog, *gateway.Gateway, *errsink.Sink) {
	t.Helper()
	g := gatewaytest.Open(t)
	sink := errsink.New("catalog")
	c, err := New(context.Background(), g, sink, Options{})
	require.NoError(t, err)
	return c, g, sink
}

func newFaultyCatalog(t *testing.T) (*Catalog, *gatewaytest.Faulty, *errsink.Sink) {
	t.Helper()
	f := gatewaytest.NewFaulty(gatewaytest.Open(t))
	sink := errsink.New("catalog")
	c, err := New(context.Background(), f, sink, Options{})
	require.NoError(t, err)
	return c, f, sink
}

func kinds(records []types.ErrorRecord) []types.ErrorKind {
	out := make([]types.ErrorKind, len(records))
	for i, r := range records {
		out[i] = r.Kind
	}
	return out
}

func TestCatalog_BootstrapCreatesTable(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)

	exists, err := g.TableExists(ctx, types.MetaTable)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = New(ctx, g, errsink.New("catalog"), Options{})
	require.NoError(t, err)

	exists, err = g.TableExists(ctx, types.MetaTable)
	require.NoError(t, err)
	assert.True(t, exists)

	// A second bootstrap finds the table and accepts its shape.
	_, err = New(ctx, g, errsink.New("catalog"), Options{})
	require.NoError(t, err)
}

func TestCatalog_VerifiedSkipsProbe(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFaulty(gatewaytest.Open(t))
	v := &Verified{}

	_, err := New(ctx, f, errsink.New("a"), Options{Verified: v})
	require.NoError(t, err)
	assert.True(t, v.IsSet())
	assert.Equal(t, 1, f.ProbeCount())

	_, err = New(ctx, f, errsink.New("b"), Options{Verified: v})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ProbeCount())

	_, err = New(ctx, f, errsink.New("c"), Options{AssumeBootstrapped: true})
	require.NoError(t, err)
	assert.Equal(t, 1, f.ProbeCount())
}

func TestCatalog_FailedBootstrapLeavesUnverified(t *testing.T) {
	ctx := context.Background()
	f := gatewaytest.NewFaulty(gatewaytest.Open(t))
	f.SetDown(true)
	v := &Verified{}

	_, err := New(ctx, f, errsink.New("catalog"), Options{Verified: v})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.KindConnection))
	assert.False(t, v.IsSet())
}

func TestCatalog_ShapeViolation(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	require.NoError(t, g.Write(ctx,
		`CREATE TABLE "dataset_meta" ("id" TEXT, "name" TEXT, "size" DOUBLE PRECISION)`))

	_, err := New(ctx, g, errsink.New("catalog"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.KindCatalogShape))

	c, err := New(ctx, g, errsink.New("catalog"), Options{AssumeBootstrapped: true})
	require.NoError(t, err)
	ids, err := c.ListIDs(ctx)
	assert.Nil(t, ids)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.KindCatalogShape))
}

func TestCatalog_ShapeViolationColumnCount(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	require.NoError(t, g.Write(ctx, `CREATE TABLE "dataset_meta" ("name" TEXT, "id" TEXT)`))

	_, err := New(ctx, g, errsink.New("catalog"), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.KindCatalogShape))
}

func TestCatalog_AddGetRemove(t *testing.T) {
	ctx := context.Background()
	c, _, sink := newCatalog(t)

	require.True(t, c.Add(ctx, "trips", idA, 3))
	assert.True(t, c.Contains(ctx, idA))

	ds, ok := c.Get(ctx, idA)
	require.True(t, ok)
	assert.Equal(t, types.Dataset{ID: idA, Name: "trips", Size: 3}, ds)

	ids, err := c.ListIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{idA}, ids)

	require.True(t, c.Remove(ctx, idA))
	assert.False(t, c.Contains(ctx, idA))
	assert.False(t, sink.HasErrors())
}

func TestCatalog_AddCollisionLeavesCatalogUnchanged(t *testing.T) {
	ctx := context.Background()
	c, _, sink := newCatalog(t)

	require.True(t, c.Add(ctx, "first", idA, 3))
	assert.False(t, c.Add(ctx, "second", idA, 5))

	assert.Equal(t, []types.ErrorKind{types.KindCollision}, kinds(sink.Drain(true)))

	all, err := c.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.Dataset{{ID: idA, Name: "first", Size: 3}}, all)
}

func TestCatalog_AddRejectsIllegalValues(t *testing.T) {
	ctx := context.Background()
	c, _, sink := newCatalog(t)

	tests := []struct {
		name   string
		dsName string
		id     string
		size   int64
	}{
		{"uninitialized size", "trips", idA, types.SizeUninitialized},
		{"negative size", "trips", idA, -7},
		{"bad name", "trips; DROP", idA, 1},
		{"empty name", "", idA, 1},
		{"empty id", "trips", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, c.Add(ctx, tt.dsName, tt.id, tt.size))
			assert.Equal(t, []types.ErrorKind{types.KindIllegalValue}, kinds(sink.Drain(true)))
		})
	}

	ids, err := c.ListIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCatalog_AddBackendRejection(t *testing.T) {
	ctx := context.Background()
	c, f, sink := newFaultyCatalog(t)
	f.Fail("INSERT INTO")

	assert.False(t, c.Add(ctx, "trips", idA, 3))
	assert.Equal(t, []types.ErrorKind{types.KindQuery, types.KindNotAdded}, kinds(sink.Drain(true)))

	f.Heal()
	assert.False(t, c.Contains(ctx, idA))
}

func TestCatalog_ReadFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	c, f, sink := newFaultyCatalog(t)
	f.SetDown(true)

	ids, err := c.ListIDs(ctx)
	require.NoError(t, err)
	assert.Nil(t, ids)
	assert.Contains(t, kinds(sink.Drain(true)), types.KindConnection)

	assert.False(t, c.Contains(ctx, idA))
	assert.True(t, sink.HasErrors())
}

func TestCatalog_GetMissing(t *testing.T) {
	c, _, sink := newCatalog(t)

	_, ok := c.Get(context.Background(), idB)
	assert.False(t, ok)
	assert.Equal(t, []types.ErrorKind{types.KindNotFound}, kinds(sink.Drain(true)))
}

func TestCatalog_RemoveMissing(t *testing.T) {
	c, _, sink := newCatalog(t)

	assert.False(t, c.Remove(context.Background(), idB))
	assert.Equal(t, []types.ErrorKind{types.KindNotDeleted}, kinds(sink.Drain(true)))
}

func TestCatalog_SizeUpdates(t *testing.T) {
	ctx := context.Background()
	c, _, sink := newCatalog(t)
	require.True(t, c.Add(ctx, "trips", idA, 3))

	require.True(t, c.AdjustSize(ctx, idA, 10))
	ds, _ := c.Get(ctx, idA)
	assert.Equal(t, int64(10), ds.Size)

	require.True(t, c.IncreaseSize(ctx, idA, 5))
	ds, _ = c.Get(ctx, idA)
	assert.Equal(t, int64(15), ds.Size)

	assert.False(t, c.AdjustSize(ctx, idA, -1))
	assert.Equal(t, []types.ErrorKind{types.KindIllegalValue}, kinds(sink.Drain(true)))

	assert.False(t, c.AdjustSize(ctx, idB, 1))
	assert.Equal(t, []types.ErrorKind{types.KindNotFound, types.KindNotUpdated}, kinds(sink.Drain(true)))

	assert.False(t, c.IncreaseSize(ctx, idB, 1))
	assert.Equal(t, []types.ErrorKind{types.KindNotFound, types.KindNotUpdated}, kinds(sink.Drain(true)))
}

func TestCatalog_FindByName(t *testing.T) {
	ctx := context.Background()
	c, _, sink := newCatalog(t)
	require.True(t, c.Add(ctx, "trips", idA, 3))
	require.True(t, c.Add(ctx, "walks", idB, 4))

	ds, found, ok := c.FindByName(ctx, "walks")
	require.True(t, ok)
	require.True(t, found)
	assert.Equal(t, idB, ds.ID)

	_, found, ok = c.FindByName(ctx, "rides")
	assert.True(t, ok)
	assert.False(t, found)
	assert.False(t, sink.HasErrors())
}

func TestCatalog_LookupDistinguishesReadFailure(t *testing.T) {
	ctx := context.Background()
	c, f, sink := newFaultyCatalog(t)
	require.True(t, c.Add(ctx, "trips", idA, 3))

	_, found, ok := c.Lookup(ctx, idB)
	assert.True(t, ok)
	assert.False(t, found)
	assert.False(t, sink.HasErrors())

	f.Fail(`"name" = 'trips'`)
	_, found, ok = c.FindByName(ctx, "trips")
	assert.False(t, ok)
	assert.False(t, found)
	assert.Equal(t, []types.ErrorKind{types.KindQuery}, kinds(sink.Drain(true)))
}

func TestCatalog_ShapeViolationAfterBootstrap(t *testing.T) {
	ctx := context.Background()
	g := gatewaytest.Open(t)
	v := &Verified{}
	sink := errsink.New("catalog")
	c, err := New(ctx, g, sink, Options{Verified: v})
	require.NoError(t, err)
	require.True(t, v.IsSet())

	require.NoError(t, g.Write(ctx,
		`DROP TABLE "dataset_meta"`,
		`CREATE TABLE "dataset_meta" ("id" TEXT, "name" TEXT, "size" DOUBLE PRECISION)`))

	_, ok := c.Get(ctx, idA)
	assert.False(t, ok)
	assert.Equal(t, []types.ErrorKind{types.KindCatalogShape}, kinds(sink.Drain(true)))
	assert.False(t, v.IsSet())

	_, err = New(ctx, g, errsink.New("catalog"), Options{Verified: v})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.KindCatalogShape))
}

func TestVerifiedFor(t *testing.T) {
	loc := "sqlite:" + t.TempDir()
	a := VerifiedFor(loc)
	assert.Same(t, a, VerifiedFor(loc))
	assert.NotSame(t, a, VerifiedFor("sqlite:/elsewhere"))
	assert.False(t, a.IsSet())
}
