package repository

import "errors"

// ErrNotFound indicates an entity was not located.
var ErrNotFound = errors.New("repository: not found")

// ErrInvalidArgument indicates a malformed or rejected input value.
var ErrInvalidArgument = errors.New("repository: invalid argument")

// ErrConflict indicates a uniqueness violation, such as two writers racing
// to create the same config key.
var ErrConflict = errors.New("repository: conflict")
