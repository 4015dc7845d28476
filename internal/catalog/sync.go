package catalog

import (
	"context"
	"sort"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// ValidateSync reports whether the catalog and the data table agree: the
// same number of datasets, no duplicate catalog ids, and the same set of
// ids. An empty catalog with no data table is in sync. Every violation is
// recorded as a CatalogSyncError; a read failure is recorded and reported
// as out of sync. The returned error is a shape violation.
func (c *Catalog) ValidateSync(ctx context.Context) (bool, error) {
	ids, err := c.ListIDs(ctx)
	if err != nil {
		return false, err
	}
	if ids == nil {
		return false, nil
	}

	exists, err := c.DataTableExists(ctx)
	if err != nil {
		c.sink.RecordErr(err, types.KindConnection)
		return false, nil
	}
	if !exists {
		if len(ids) == 0 {
			return true, nil
		}
		c.sink.Recordf(types.KindCatalogSync,
			"catalog lists %d datasets but data table %s does not exist", len(ids), types.DataTable)
		c.log.Warn("catalog out of sync", "reason", "missing data table", "datasets", len(ids))
		return false, nil
	}

	markers, err := c.markers(ctx)
	if err != nil {
		return false, err
	}
	if markers == nil {
		return false, nil
	}

	inSync := true
	if len(ids) != len(markers) {
		c.sink.Recordf(types.KindCatalogSync,
			"catalog lists %d datasets, data table holds %d", len(ids), len(markers))
		inSync = false
	}

	catalogIDs := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := catalogIDs[id]; dup {
			c.sink.Recordf(types.KindCatalogSync, "duplicate catalog id %s", id)
			inSync = false
		}
		catalogIDs[id] = struct{}{}
	}

	dataIDs := make(map[string]struct{}, len(markers))
	for _, id := range markers {
		dataIDs[id] = struct{}{}
		if _, ok := catalogIDs[id]; !ok {
			c.sink.Recordf(types.KindCatalogSync, "rows tagged %s have no catalog entry", id)
			inSync = false
		}
	}
	for _, id := range sortedKeys(catalogIDs) {
		if _, ok := dataIDs[id]; !ok {
			c.sink.Recordf(types.KindCatalogSync, "dataset %s has no rows in %s", id, types.DataTable)
			inSync = false
		}
	}

	if !inSync {
		c.log.Warn("catalog out of sync", "catalog", len(ids), "data", len(markers))
	}
	return inSync, nil
}

// markers returns the distinct dataset ids present in the data table,
// sorted. A nil slice with a nil error means the read failed and was
// recorded.
func (c *Catalog) markers(ctx context.Context) ([]string, error) {
	q := sqlbuild.Select{
		Columns:  []string{types.ColumnDataset},
		Table:    types.DataTable,
		Distinct: true,
		OrderBy:  []string{types.ColumnDataset},
	}.SQL(c.exec.Dialect())
	res, err := c.exec.Read(ctx, q)
	if err != nil {
		c.sink.RecordErr(err, types.KindConnection)
		return nil, nil
	}
	if len(res.Columns) != 1 {
		return nil, errors.Newf(types.KindCatalogShape,
			"marker query on %s returned %d columns", types.DataTable, len(res.Columns))
	}
	return res.Strings(0), nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
