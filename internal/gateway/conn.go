package gateway

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/internal/metrics"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

var _ types.Conn = (*handle)(nil)

// handle is one pooled connection with an open transaction.
type handle struct {
	conn   *sql.Conn
	tx     *sql.Tx
	log    *slog.Logger
	closed bool
}

func (h *handle) Exec(ctx context.Context, stmt string) error {
	if h.closed {
		return errors.WithKind(types.KindConnection, ErrHandleClosed)
	}
	h.log.Debug("exec", "sql", stmt)
	if _, err := h.tx.ExecContext(ctx, stmt); err != nil {
		metrics.Statements.WithLabelValues("write", metrics.OutcomeError).Inc()
		return errors.WithKind(types.KindQuery, err)
	}
	metrics.Statements.WithLabelValues("write", metrics.OutcomeOK).Inc()
	return nil
}

func (h *handle) Query(ctx context.Context, query string) (*types.Result, error) {
	if h.closed {
		return nil, errors.WithKind(types.KindConnection, ErrHandleClosed)
	}
	h.log.Debug("query", "sql", query)
	rows, err := h.tx.QueryContext(ctx, query)
	if err != nil {
		metrics.Statements.WithLabelValues("read", metrics.OutcomeError).Inc()
		return nil, errors.WithKind(types.KindQuery, err)
	}
	defer rows.Close()

	res, err := scanResult(rows)
	if err != nil {
		metrics.Statements.WithLabelValues("read", metrics.OutcomeError).Inc()
		return nil, errors.WithKind(types.KindQuery, err)
	}
	metrics.Statements.WithLabelValues("read", metrics.OutcomeOK).Inc()
	return res, nil
}

func (h *handle) CommitAndClose() error {
	if h.closed {
		return nil
	}
	h.closed = true
	err := h.tx.Commit()
	h.conn.Close()
	if err != nil {
		return errors.WithKind(types.KindConnection, errors.Wrap(err, "committing"))
	}
	return nil
}

func (h *handle) RollbackAndClose() error {
	if h.closed {
		return nil
	}
	h.closed = true
	err := h.tx.Rollback()
	h.conn.Close()
	if err != nil && err != sql.ErrTxDone {
		return errors.WithKind(types.KindConnection, errors.Wrap(err, "rolling back"))
	}
	return nil
}

func (h *handle) Close() error {
	return h.RollbackAndClose()
}

// scanResult reads every row. Byte slices are copied into strings because
// drivers reuse their buffers between rows.
func scanResult(rows *sql.Rows) (*types.Result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &types.Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}
