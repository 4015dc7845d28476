package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/mesh-intelligence/trajstore/internal/metrics"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return sysErr("encode output: %v", err)
	}
	return nil
}

// printResult writes res as JSON or as a tab-aligned table with a header.
func (a *app) printResult(w io.Writer, res *types.Result) error {
	if a.jsonMode {
		return printJSON(w, res)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ToUpper(strings.Join(res.Columns, "\t")))
	for i := range res.Rows {
		cells := make([]string, len(res.Columns))
		for j := range cells {
			cells[j] = types.AsString(res.Rows[i][j])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// printLines writes values one per line, or as a JSON array.
func (a *app) printLines(w io.Writer, values []string) error {
	if a.jsonMode {
		if values == nil {
			values = []string{}
		}
		return printJSON(w, values)
	}
	for _, v := range values {
		fmt.Fprintln(w, v)
	}
	return nil
}

// printMetrics writes every collected series as "name value", sorted.
func printMetrics(w io.Writer) error {
	snap, err := metrics.Snapshot()
	if err != nil {
		return sysErr("gather metrics: %v", err)
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s %g\n", k, snap[k])
	}
	return nil
}
