// Package sqlbuild renders selection and filter intents into SQL strings for
// a given dialect. It performs no I/O.
//
// Values are embedded as single-quoted literals with embedded quotes doubled;
// identifiers are wrapped in double quotes (backticks for MySQL) and are not
// otherwise escaped. Callers must not pass untrusted identifiers.
package sqlbuild

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// matchNone is rendered in place of an IN over an empty list.
const matchNone = "1 = 0"

// Ident quotes an identifier for d.
func Ident(d types.Dialect, name string) string {
	if d == types.DialectMySQL {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// Idents quotes and comma-joins identifiers.
func Idents(d types.Dialect, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Ident(d, n)
	}
	return strings.Join(quoted, ", ")
}

// Literal renders v as a quoted string literal.
func Literal(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// Literals renders values as a comma-joined list of literals.
func Literals(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Literal(v)
	}
	return strings.Join(quoted, ", ")
}

// Eq renders column = 'value'.
func Eq(d types.Dialect, column, value string) string {
	return Ident(d, column) + " = " + Literal(value)
}

// In renders column IN ('a', 'b'). An empty list renders a predicate that
// matches no rows.
func In(d types.Dialect, column string, values []string) string {
	if len(values) == 0 {
		return matchNone
	}
	return Ident(d, column) + " IN (" + Literals(values) + ")"
}

// Not negates a fragment. It is applied once, when a filter is stored.
func Not(expr string) string {
	return "NOT(" + expr + ")"
}

// And joins the non-empty fragments. Fragments other than the first are
// parenthesized so that caller filters containing OR keep their meaning.
func And(exprs ...string) string {
	var parts []string
	for _, e := range exprs {
		if e == "" {
			continue
		}
		if len(parts) > 0 {
			e = "(" + e + ")"
		}
		parts = append(parts, e)
	}
	return strings.Join(parts, " AND ")
}

// Select describes a single-table SELECT.
type Select struct {
	Columns  []string // nil selects every column
	Table    string
	Distinct bool
	Where    string
	OrderBy  []string
}

// SQL renders s for dialect d.
func (s Select) SQL(d types.Dialect) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.Distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.Columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(Idents(d, s.Columns))
	}
	b.WriteString(" FROM ")
	b.WriteString(Ident(d, s.Table))
	if s.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(s.Where)
	}
	if len(s.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(Idents(d, s.OrderBy))
	}
	return b.String()
}

// Insert renders a multi-row INSERT with every value as a literal.
func Insert(d types.Dialect, table string, columns []string, rows [][]string) string {
	values := make([]string, len(rows))
	for i, r := range rows {
		values[i] = "(" + Literals(r) + ")"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		Ident(d, table), Idents(d, columns), strings.Join(values, ", "))
}

// Update renders UPDATE table SET column = 'value' WHERE where.
func Update(d types.Dialect, table, column, value, where string) string {
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s", Ident(d, table), Eq(d, column, value), where)
}

// Delete renders DELETE FROM table WHERE where.
func Delete(d types.Dialect, table, where string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s", Ident(d, table), where)
}

// Count renders SELECT COUNT(*) FROM table WHERE where.
func Count(d types.Dialect, table, where string) string {
	q := "SELECT COUNT(*) FROM " + Ident(d, table)
	if where != "" {
		q += " WHERE " + where
	}
	return q
}

// TableNames renders the query listing the tables visible to the current
// connection. The result has a single column of table names.
func TableNames(d types.Dialect) string {
	switch d {
	case types.DialectPostgres:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema()"
	case types.DialectMySQL:
		return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE()"
	default:
		return "SELECT name FROM sqlite_master WHERE type = 'table'"
	}
}

// CreateCatalog renders the DDL of the three-column catalog table.
func CreateCatalog(d types.Dialect, table string) string {
	double := "DOUBLE PRECISION"
	if d == types.DialectMySQL {
		double = "DOUBLE"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s TEXT, %s TEXT, %s %s)",
		Ident(d, table),
		Ident(d, types.MetaColumnName),
		Ident(d, types.MetaColumnID),
		Ident(d, types.MetaColumnSize),
		double,
	)
}

// Probe renders a query that returns the table's columns and no rows.
func Probe(d types.Dialect, table string) string {
	return Select{Table: table, Where: matchNone}.SQL(d)
}
