package domain

import "errors"

// Error kinds shared by the integrations and the workflows. Integration
// wrappers join these with the underlying SDK error so both errors.Is and the
// original message survive.
var (
	// ErrConflict is a concurrent-modification conflict, usually the bot build lock.
	ErrConflict = errors.New("conflict")
	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEndpointUnreachable means the regional service endpoint could not be reached.
	ErrEndpointUnreachable = errors.New("endpoint unreachable")
	// ErrPermissionExists means the permission statement id is already present.
	ErrPermissionExists = errors.New("permission already exists")
)
