package ports

import (
	"context"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

// Sink writes one buffered batch. A returned error is fatal to the
// pipeline; partial failures are the sink's to log.
type Sink interface {
	WriteBatch(ctx context.Context, records []*domain.Record) error
	Name() string
}
