package memdev

import "errors"

// ErrOutOfRange is returned when an operation addresses bytes outside
// the backing store.
var ErrOutOfRange = errors.New("memdev: access out of range")
