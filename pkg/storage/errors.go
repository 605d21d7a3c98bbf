package storage

import "errors"

// ErrNotFound is returned when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when an insert hits an existing key.
var ErrAlreadyExists = errors.New("record already exists")

// ErrAlreadyResolved is returned when an approval request is no longer pending.
var ErrAlreadyResolved = errors.New("approval request already resolved")

// ErrConflict is returned when a record read before a multi-item write
// changed before the write committed. The caller may retry.
var ErrConflict = errors.New("concurrent update")

// ErrOutboxItemSent is returned when a sent outbox item would be modified.
var ErrOutboxItemSent = errors.New("outbox item already sent")
