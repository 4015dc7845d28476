package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a recorded or returned failure.
type ErrorKind string

// Error kinds. CatalogShapeError is fatal and is returned as an error; every
// other kind is recorded into an error sink and signaled by a failure value.
const (
	KindConnection   ErrorKind = "ConnectionError"
	KindQuery        ErrorKind = "QueryError"
	KindCatalogShape ErrorKind = "CatalogShapeError"
	KindCatalogSync  ErrorKind = "CatalogSyncError"
	KindNotFound     ErrorKind = "NotFoundError"
	KindCollision    ErrorKind = "CollisionError"
	KindIllegalValue ErrorKind = "IllegalValueError"
	KindInUse        ErrorKind = "InUseError"
	KindNotAdded     ErrorKind = "NotAddedError"
	KindNotDeleted   ErrorKind = "NotDeletedError"
	KindNotUpdated   ErrorKind = "NotUpdatedError"
)

// ErrorRecord is one accumulated failure.
type ErrorRecord struct {
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail"`
}

func (r ErrorRecord) String() string {
	return fmt.Sprintf("%s: %s", r.Kind, r.Detail)
}

// Validation errors.
var (
	ErrInvalidName   = errors.New("invalid dataset name")
	ErrInvalidID     = errors.New("invalid dataset ID")
	ErrInvalidColumn = errors.New("invalid column name")
)
