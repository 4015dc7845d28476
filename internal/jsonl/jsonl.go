// Package jsonl reads and writes trajectory points as JSON lines, one point
// object per line.
package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// maxLine bounds a single JSONL line.
const maxLine = 1 << 20

// ReadPoints decodes one point per line from r. Empty lines are ignored.
// Lines that are not valid JSON or lack a trajectory id or timestamp are
// skipped and counted.
func ReadPoints(r io.Reader) ([]types.Point, int, error) {
	var (
		points  []types.Point
		skipped int
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var p types.Point
		if err := json.Unmarshal(line, &p); err != nil {
			skipped++
			continue
		}
		if p.TrajectoryID == "" || p.Time.IsZero() {
			skipped++
			continue
		}
		points = append(points, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scanning points: %w", err)
	}
	return points, skipped, nil
}

// ReadFile is ReadPoints over the file at path.
func ReadFile(path string) ([]types.Point, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	points, skipped, err := ReadPoints(f)
	if err != nil {
		return nil, skipped, fmt.Errorf("reading %s: %w", path, err)
	}
	return points, skipped, nil
}

// WriteFile atomically writes points to path using the temp-file, fsync,
// rename pattern.
func WriteFile(path string, points []types.Point) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, p := range points {
		if err := enc.Encode(p); err != nil {
			return fail(fmt.Errorf("writing point: %w", err))
		}
	}
	if err := w.Flush(); err != nil {
		return fail(fmt.Errorf("flushing buffer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("syncing temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// PointsFromResult converts rows read with the point columns back into
// points. The result must carry at least the trajectory, time, lat and lon
// columns; the others are optional.
func PointsFromResult(res *types.Result) ([]types.Point, error) {
	idx := map[string]int{}
	for _, col := range types.PointColumns {
		idx[col] = res.ColumnIndex(col)
	}
	for _, col := range []string{types.ColumnTrajectory, types.ColumnTime, types.ColumnLat, types.ColumnLon} {
		if idx[col] < 0 {
			return nil, fmt.Errorf("result lacks column %s", col)
		}
	}

	points := make([]types.Point, 0, res.Len())
	for i, row := range res.Rows {
		ts, err := time.Parse(time.RFC3339Nano, types.AsString(row[idx[types.ColumnTime]]))
		if err != nil {
			return nil, fmt.Errorf("row %d: parsing time: %w", i, err)
		}
		p := types.Point{
			TrajectoryID: types.AsString(row[idx[types.ColumnTrajectory]]),
			Time:         ts,
		}
		if p.Lat, err = asFloat(row[idx[types.ColumnLat]]); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", i, types.ColumnLat, err)
		}
		if p.Lon, err = asFloat(row[idx[types.ColumnLon]]); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", i, types.ColumnLon, err)
		}
		if j := idx[types.ColumnAltitude]; j >= 0 {
			p.Altitude, _ = asFloat(row[j])
		}
		if j := idx[types.ColumnSpeed]; j >= 0 {
			p.Speed, _ = asFloat(row[j])
		}
		if j := idx[types.ColumnLabel]; j >= 0 {
			p.Label = types.AsString(row[j])
		}
		points = append(points, p)
	}
	return points, nil
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case nil:
		return 0, nil
	default:
		return strconv.ParseFloat(types.AsString(x), 64)
	}
}
