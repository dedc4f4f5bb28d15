package connector

import (
	"context"
	"fmt"

	"github.com/ObserveRTC/connector-sub000/internal/adapters/decoder"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/source"
)

// Publisher encodes records and pushes them onto a runtime memory queue.
// With a journal, every frame is appended to a frame file first, so a
// framefile pipeline can replay it later.
type Publisher struct {
	queue   *MemoryQueue
	encode  func(*Record) ([]byte, error)
	journal *source.FrameWriter
}

// PublisherConfig configures a Publisher. Format is json (default) or
// msgpack and must match the decoder of the consuming pipeline.
type PublisherConfig struct {
	Queue   string
	Format  string
	Journal string
}

// Publisher returns a publisher feeding the memory queue cfg.Queue.
func (r *Runtime) Publisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Queue == "" {
		return nil, fmt.Errorf("publisher queue is required")
	}
	p := &Publisher{}
	switch cfg.Format {
	case "", "json":
		p.encode = decoder.JSON{}.Encode
	case "msgpack":
		p.encode = decoder.Msgpack{}.Encode
	default:
		return nil, fmt.Errorf("unknown publisher format %q", cfg.Format)
	}
	q, err := r.Queue(cfg.Queue)
	if err != nil {
		return nil, err
	}
	p.queue = q
	if cfg.Journal != "" {
		w, err := source.OpenFrameWriter(cfg.Journal)
		if err != nil {
			return nil, err
		}
		p.journal = w
	}
	return p, nil
}

// Publish encodes rec and enqueues it according to the queue's full policy.
func (p *Publisher) Publish(ctx context.Context, rec *Record) error {
	frame, err := p.encode(rec)
	if err != nil {
		return err
	}
	return p.PublishFrame(ctx, frame)
}

// PublishFrame enqueues an already encoded frame.
func (p *Publisher) PublishFrame(ctx context.Context, frame []byte) error {
	if p.journal != nil {
		if _, err := p.journal.Append(frame); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}
	return p.queue.Push(ctx, frame)
}

// Close flushes and closes the journal. The queue stays open for other
// publishers; Runtime.Shutdown closes it.
func (p *Publisher) Close() error {
	if p.journal == nil {
		return nil
	}
	return p.journal.Close()
}
