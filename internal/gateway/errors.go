package gateway

import "errors"

// Gateway lifecycle errors.
var (
	ErrDetached        = errors.New("gateway is detached")
	ErrAlreadyAttached = errors.New("gateway is already attached")
	ErrHandleClosed    = errors.New("connection handle is closed")
)
