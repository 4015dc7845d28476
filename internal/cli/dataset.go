package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/trajstore/internal/jsonl"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

func newImportCmd(a *app) *cobra.Command {
	var appendByName bool
	cmd := &cobra.Command{
		Use:   "import <name> <points.jsonl>",
		Short: "Create a dataset from a JSONL file of points",
		Long: `Import reads one JSON point per line and stores the points as a new
dataset. Malformed lines are skipped and counted. With --append the points
are added to an existing dataset of the same name instead.

Example:
  trajstore import trips trips.jsonl
  trajstore import trips more-trips.jsonl --append`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]
			if err := types.ValidateDatasetName(name); err != nil {
				return userErr("%v: %q", err, name)
			}
			points, skipped, err := jsonl.ReadFile(path)
			if err != nil {
				return userErr("%v", err)
			}

			store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			id, ok := store.Registry().Create(cmd.Context(), types.DatasetRecord{Name: name, Points: points}, appendByName)
			if !ok {
				return failure(store, "import "+name)
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id": id, "name": name, "points": len(points), "skipped": skipped,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", id)
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d malformed lines\n", skipped)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendByName, "append", false, "append to the dataset with the same name if one exists")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List datasets with their ids and sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			datasets, err := store.Registry().Datasets(cmd.Context())
			if err != nil {
				return sysErr("list datasets: %v", err)
			}
			if datasets == nil {
				return failure(store, "list datasets")
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), datasets)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tID\tSIZE")
			for _, ds := range datasets {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", ds.Name, ds.ID, ds.Size)
			}
			return tw.Flush()
		},
	}
}

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the catalog matches the stored points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			ok, err := store.Catalog().ValidateSync(cmd.Context())
			if err != nil {
				return sysErr("check catalog: %v", err)
			}
			if !ok {
				return failure(store, "catalog out of sync")
			}
			version, dirty, err := store.Gateway().MigrationVersion(cmd.Context())
			if err != nil {
				return sysErr("read schema version: %v", err)
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), checkReport{InSync: true, SchemaVersion: version, Dirty: dirty})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog in sync (data schema version %d", version)
			if dirty {
				fmt.Fprint(cmd.OutOrStdout(), ", dirty")
			}
			fmt.Fprintln(cmd.OutOrStdout(), ")")
			return nil
		},
	}
}

type checkReport struct {
	InSync        bool `json:"in_sync"`
	SchemaVersion uint `json:"schema_version"`
	Dirty         bool `json:"dirty"`
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a dataset and its points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if !store.Registry().Delete(cmd.Context(), args[0]) {
				return failure(store, "delete "+args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func newResizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resize <id>",
		Short: "Recount a dataset's points into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, ok := store.Registry().Resize(cmd.Context(), args[0])
			if !ok {
				return failure(store, "resize "+args[0])
			}
			if a.jsonMode {
				return printJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "size": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", args[0], n)
			return nil
		},
	}
}
