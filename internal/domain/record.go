package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownRecordType = errors.New("domain: unknown record type")
	ErrNilPayload        = errors.New("domain: nil payload")
	ErrTypeMismatch      = errors.New("domain: header type does not match payload kind")
)

// RecordType tags the payload kind of a Record.
type RecordType int

const (
	TypeCallInitiated RecordType = iota
	TypeCallFinished
	TypePeerConnectionJoined
	TypePeerConnectionDetached
	TypeInboundRTP
	TypeOutboundRTP
	TypeRemoteInboundRTP
	TypeICECandidate
	TypeICECandidatePair
	TypeMediaSource
	TypeTrack
	TypeUserMediaError
	TypeObserverEvent
	TypeExtension
	TypeClientDetails
)

var recordTypeNames = enumNames{
	"CALL_INITIATED",
	"CALL_FINISHED",
	"PEER_CONNECTION_JOINED",
	"PEER_CONNECTION_DETACHED",
	"INBOUND_RTP",
	"OUTBOUND_RTP",
	"REMOTE_INBOUND_RTP",
	"ICE_CANDIDATE",
	"ICE_CANDIDATE_PAIR",
	"MEDIA_SOURCE",
	"TRACK",
	"USER_MEDIA_ERROR",
	"OBSERVER_EVENT",
	"EXTENSION",
	"CLIENT_DETAILS",
}

// RecordTypes returns every record type in declaration order.
func RecordTypes() []RecordType {
	out := make([]RecordType, len(recordTypeNames))
	for i := range out {
		out[i] = RecordType(i)
	}
	return out
}

// ParseRecordType resolves a type tag by its name, case-insensitively.
func ParseRecordType(s string) (RecordType, error) {
	i, ok := recordTypeNames.parse(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
	}
	return RecordType(i), nil
}

func (t RecordType) String() string {
	return recordTypeNames.name(int(t))
}

func (RecordType) Symbols() []string {
	return append([]string(nil), recordTypeNames...)
}

// Valid reports whether t is one of the declared record types.
func (t RecordType) Valid() bool {
	return t >= 0 && int(t) < len(recordTypeNames)
}

func (t RecordType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRecordType, int(t))
	}
	return []byte(t.String()), nil
}

func (t *RecordType) UnmarshalText(b []byte) error {
	v, err := ParseRecordType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Header carries the fields shared by every record kind.
type Header struct {
	Version     int32      `schema:"version"`
	Type        RecordType `schema:"type"`
	OriginID    string     `schema:"originId"`
	OriginName  string     `schema:"originName"`
	TimestampMs int64      `schema:"timestamp"`
	Marker      *string    `schema:"marker"`
}

// Record is the unit flowing through a pipeline. Records are shared by
// pointer between stages and must not be modified once built.
type Record struct {
	Header
	Payload Payload `schema:"-"`
}

// NewRecord builds a record, checking that the header tag matches the payload.
func NewRecord(h Header, p Payload) (*Record, error) {
	if p == nil {
		return nil, ErrNilPayload
	}
	if h.Type != p.Kind() {
		return nil, fmt.Errorf("%w: header=%s payload=%s", ErrTypeMismatch, h.Type, p.Kind())
	}
	return &Record{Header: h, Payload: p}, nil
}
