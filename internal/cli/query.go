package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/trajstore/internal/jsonl"
	"github.com/mesh-intelligence/trajstore/pkg/trajstore"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// scopeFlags select the datasets a read runs over.
type scopeFlags struct {
	datasets []string
}

func (s *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&s.datasets, "dataset", nil, "dataset id to include (repeatable; default: all datasets)")
}

// activate loads the selected datasets, or every dataset when none was
// named.
func (s *scopeFlags) activate(ctx context.Context, store *trajstore.Store) error {
	ids := s.datasets
	if len(ids) == 0 {
		all, err := store.Registry().Datasets(ctx)
		if err != nil {
			return sysErr("list datasets: %v", err)
		}
		if all == nil {
			return failure(store, "list datasets")
		}
		for _, ds := range all {
			ids = append(ids, ds.ID)
		}
	}
	for _, id := range ids {
		if !store.Registry().Load(ctx, id) {
			return failure(store, "load "+id)
		}
	}
	return nil
}

// checkColumns rejects names that are not data table columns.
func checkColumns(ctx context.Context, store *trajstore.Store, names ...string) error {
	cols, ok := store.Access().Columns(ctx)
	if !ok {
		return failure(store, "list columns")
	}
	for _, n := range names {
		if !slices.Contains(cols, n) {
			return userErr("%w %q (valid: %v)", types.ErrInvalidColumn, n, cols)
		}
	}
	return nil
}

func newQueryCmd(a *app) *cobra.Command {
	var (
		scope     scopeFlags
		columns   []string
		filter    string
		negate    bool
		selColumn string
		selValues []string
		noFilter  bool
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print points of the selected datasets",
		Long: `Query prints the chosen columns of every point in the selected datasets.

--filter adds a SQL condition on the points; --negate inverts it.
--select-column and --values restrict the rows to those whose column holds
one of the values; --no-filter then ignores --filter.

Example:
  trajstore query --columns lat,lon --filter "speed > 2"
  trajstore query --select-column trajectory_id --values t1,t2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			check := append([]string{}, columns...)
			if selColumn != "" {
				check = append(check, selColumn)
			}
			if err := checkColumns(ctx, store, check...); err != nil {
				return err
			}
			if err := scope.activate(ctx, store); err != nil {
				return err
			}

			acc := store.Access()
			acc.SetPointFilter(filter, true, negate)
			var res *types.Result
			if selColumn != "" {
				res = acc.ByColumnSelection(ctx, columns, selValues, selColumn, !noFilter)
			} else {
				res = acc.Data(ctx, columns...)
			}
			if res == nil {
				return failure(store, "query")
			}
			return a.printResult(cmd.OutOrStdout(), res)
		},
	}
	scope.register(cmd)
	cmd.Flags().StringSliceVar(&columns, "columns", types.PointColumns[1:], "columns to print")
	cmd.Flags().StringVar(&filter, "filter", "", "SQL condition on points")
	cmd.Flags().BoolVar(&negate, "negate", false, "invert --filter")
	cmd.Flags().StringVar(&selColumn, "select-column", "", "column to match against --values")
	cmd.Flags().StringSliceVar(&selValues, "values", nil, "values of --select-column to keep")
	cmd.Flags().BoolVar(&noFilter, "no-filter", false, "ignore --filter when selecting by column")
	return cmd
}

func newDistinctCmd(a *app) *cobra.Command {
	var scope scopeFlags
	cmd := &cobra.Command{
		Use:   "distinct <column>",
		Short: "Print the distinct values of a column",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := checkColumns(ctx, store, args[0]); err != nil {
				return err
			}
			if err := scope.activate(ctx, store); err != nil {
				return err
			}
			res := store.Access().Distinct(ctx, args[0])
			if res == nil {
				return failure(store, "distinct "+args[0])
			}
			return a.printLines(cmd.OutOrStdout(), res.Strings(0))
		},
	}
	scope.register(cmd)
	return cmd
}

func newTrajectoriesCmd(a *app) *cobra.Command {
	var (
		scope  scopeFlags
		filter string
	)
	cmd := &cobra.Command{
		Use:   "trajectories",
		Short: "Print the trajectory ids of the selected datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := scope.activate(ctx, store); err != nil {
				return err
			}
			store.Access().SetTrajectoryFilter(filter, true)
			ids, ok := store.Access().TrajectoryIDs(ctx)
			if !ok {
				return failure(store, "trajectories")
			}
			return a.printLines(cmd.OutOrStdout(), ids)
		},
	}
	scope.register(cmd)
	cmd.Flags().StringVar(&filter, "filter", "", "SQL condition a trajectory's points must meet")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var (
		scope  scopeFlags
		filter string
		negate bool
	)
	cmd := &cobra.Command{
		Use:   "export <points.jsonl>",
		Short: "Write the selected points to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := scope.activate(ctx, store); err != nil {
				return err
			}
			store.Access().SetPointFilter(filter, true, negate)
			res := store.Access().Data(ctx, types.PointColumns[1:]...)
			if res == nil {
				return failure(store, "export")
			}
			points, err := jsonl.PointsFromResult(res)
			if err != nil {
				return sysErr("export: %v", err)
			}
			if err := jsonl.WriteFile(args[0], points); err != nil {
				return sysErr("export: %v", err)
			}
			warnRecords(cmd.ErrOrStderr(), store)
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d points to %s\n", len(points), args[0])
			return nil
		},
	}
	scope.register(cmd)
	cmd.Flags().StringVar(&filter, "filter", "", "SQL condition on points")
	cmd.Flags().BoolVar(&negate, "negate", false, "invert --filter")
	return cmd
}
