package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrShareIDTaken is returned by SaveNotebook when another notebook already
// holds the share ID. Callers pick a new ID and save again.
var ErrShareIDTaken = errors.New("storage: share id already in use")
