package types

// Physical table names.
const (
	DataTable = "points"
	MetaTable = "dataset_meta"
)

// Data table columns. Every row carries the owning dataset's id in
// ColumnDataset (the marker column).
const (
	ColumnDataset    = "dataset_id"
	ColumnTrajectory = "trajectory_id"
	ColumnTime       = "ts"
	ColumnLat        = "lat"
	ColumnLon        = "lon"
	ColumnAltitude   = "altitude"
	ColumnSpeed      = "speed"
	ColumnLabel      = "label"
)

// PointColumns lists the data table columns in insert order.
var PointColumns = []string{
	ColumnDataset,
	ColumnTrajectory,
	ColumnTime,
	ColumnLat,
	ColumnLon,
	ColumnAltitude,
	ColumnSpeed,
	ColumnLabel,
}

// Catalog columns, in their fixed order.
const (
	MetaColumnName = "name"
	MetaColumnID   = "id"
	MetaColumnSize = "size"
)

// MetaColumns is the required column layout of the catalog table. Any other
// count, order or naming is a shape violation.
var MetaColumns = []string{MetaColumnName, MetaColumnID, MetaColumnSize}
