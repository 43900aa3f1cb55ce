package opqueue

import "errors"

var (
	ErrClosed  = errors.New("opqueue: queue is closed")
	ErrPanic   = errors.New("opqueue: operation panicked")
	ErrNilFunc = errors.New("opqueue: operation cannot be nil")
)
