// Package types defines the dataset, point and result types, the executor
// interfaces the storage layers call through, the error taxonomy, and the
// configuration shared by the trajstore packages.
package types
