package decoder

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

type msgpackFrame struct {
	Envelope `msgpack:",inline"`
	Payload  msgpack.RawMessage `msgpack:"payload"`
}

// Msgpack decodes MessagePack envelopes keyed like the JSON ones.
type Msgpack struct{}

func (Msgpack) Decode(frame []byte) (*domain.Record, error) {
	var f msgpackFrame
	if err := msgpack.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	h, p, err := f.resolve()
	if err != nil {
		return nil, err
	}
	if len(f.Payload) == 0 || (len(f.Payload) == 1 && f.Payload[0] == 0xc0) {
		return nil, fmt.Errorf("%w: %s", ErrMissingPayload, h.Type)
	}
	if err := msgpack.Unmarshal(f.Payload, p); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, h.Type, err)
	}
	return domain.NewRecord(h, p)
}

func (Msgpack) Encode(r *domain.Record) ([]byte, error) {
	h, err := headerOf(r)
	if err != nil {
		return nil, err
	}
	payload, err := msgpack.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msgpackFrame{Envelope: h, Payload: payload})
}

var _ ports.Decoder = Msgpack{}
