// Package decoder turns raw frames into typed records. Frames carry an
// envelope {version, type, originId, originName, timestamp, marker,
// payload} where type names the payload kind.
package decoder

import (
	"errors"
	"fmt"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

var (
	ErrMalformedFrame = errors.New("decoder: malformed frame")
	ErrMissingPayload = errors.New("decoder: missing payload")
)

// Envelope is the frame header shared by the JSON and msgpack codecs.
type Envelope struct {
	Version    int32   `json:"version" msgpack:"version"`
	Type       string  `json:"type" msgpack:"type"`
	OriginID   string  `json:"originId" msgpack:"originId"`
	OriginName string  `json:"originName" msgpack:"originName"`
	Timestamp  int64   `json:"timestamp" msgpack:"timestamp"`
	Marker     *string `json:"marker,omitempty" msgpack:"marker,omitempty"`
}

func (h Envelope) resolve() (domain.Header, domain.Payload, error) {
	kind, err := domain.ParseRecordType(h.Type)
	if err != nil {
		return domain.Header{}, nil, err
	}
	p, err := domain.NewPayload(kind)
	if err != nil {
		return domain.Header{}, nil, err
	}
	return domain.Header{
		Version:     h.Version,
		Type:        kind,
		OriginID:    h.OriginID,
		OriginName:  h.OriginName,
		TimestampMs: h.Timestamp,
		Marker:      h.Marker,
	}, p, nil
}

func headerOf(r *domain.Record) (Envelope, error) {
	if r == nil || r.Payload == nil {
		return Envelope{}, domain.ErrNilPayload
	}
	if !r.Type.Valid() {
		return Envelope{}, fmt.Errorf("%w: %d", domain.ErrUnknownRecordType, int(r.Type))
	}
	return Envelope{
		Version:    r.Version,
		Type:       r.Type.String(),
		OriginID:   r.OriginID,
		OriginName: r.OriginName,
		Timestamp:  r.TimestampMs,
		Marker:     r.Marker,
	}, nil
}
