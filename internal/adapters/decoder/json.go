package decoder

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

type jsonFrame struct {
	Envelope
	Payload json.RawMessage `json:"payload"`
}

// JSON decodes JSON envelopes. Unknown payload fields are ignored.
type JSON struct{}

func (JSON) Decode(frame []byte) (*domain.Record, error) {
	var f jsonFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	h, p, err := f.resolve()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(f.Payload)) == 0 || bytes.Equal(f.Payload, []byte("null")) {
		return nil, fmt.Errorf("%w: %s", ErrMissingPayload, h.Type)
	}
	if err := json.Unmarshal(f.Payload, p); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, h.Type, err)
	}
	return domain.NewRecord(h, p)
}

// Encode is the inverse of Decode.
func (JSON) Encode(r *domain.Record) ([]byte, error) {
	h, err := headerOf(r)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonFrame{Envelope: h, Payload: payload})
}

var _ ports.Decoder = JSON{}
