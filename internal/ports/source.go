package ports

import (
	"context"
	"errors"
)

// ErrAlreadyAttached is returned when a second consumer starts a source.
var ErrAlreadyAttached = errors.New("source already attached")

// Source produces raw frames. Start blocks until the source is exhausted,
// fails, or ctx is cancelled; it never closes out.
type Source interface {
	Start(ctx context.Context, out chan<- []byte) error
	Name() string
}
