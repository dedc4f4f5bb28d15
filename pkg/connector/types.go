package connector

import (
	"github.com/ObserveRTC/connector-sub000/internal/adapters/sink"
	"github.com/ObserveRTC/connector-sub000/internal/adapters/source"
	"github.com/ObserveRTC/connector-sub000/internal/app/manager"
	"github.com/ObserveRTC/connector-sub000/internal/domain"
	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// Record is one typed telemetry record flowing from a source to a sink.
type Record = domain.Record

// Header is the envelope metadata shared by every record.
type Header = domain.Header

// RecordType names the payload kind of a record.
type RecordType = domain.RecordType

// Payload is implemented by every record payload type.
type Payload = domain.Payload

// Payload kinds.
type (
	CallInitiated          = domain.CallInitiated
	CallFinished           = domain.CallFinished
	PeerConnectionJoined   = domain.PeerConnectionJoined
	PeerConnectionDetached = domain.PeerConnectionDetached
	InboundRTP             = domain.InboundRTP
	OutboundRTP            = domain.OutboundRTP
	RemoteInboundRTP       = domain.RemoteInboundRTP
	ICECandidate           = domain.ICECandidate
	ICECandidatePair       = domain.ICECandidatePair
	MediaSource            = domain.MediaSource
	Track                  = domain.Track
	UserMediaError         = domain.UserMediaError
	ObserverEvent          = domain.ObserverEvent
	Extension              = domain.Extension
	ClientDetails          = domain.ClientDetails
)

// Record types.
const (
	TypeCallInitiated          = domain.TypeCallInitiated
	TypeCallFinished           = domain.TypeCallFinished
	TypePeerConnectionJoined   = domain.TypePeerConnectionJoined
	TypePeerConnectionDetached = domain.TypePeerConnectionDetached
	TypeInboundRTP             = domain.TypeInboundRTP
	TypeOutboundRTP            = domain.TypeOutboundRTP
	TypeRemoteInboundRTP       = domain.TypeRemoteInboundRTP
	TypeICECandidate           = domain.TypeICECandidate
	TypeICECandidatePair       = domain.TypeICECandidatePair
	TypeMediaSource            = domain.TypeMediaSource
	TypeTrack                  = domain.TypeTrack
	TypeUserMediaError         = domain.TypeUserMediaError
	TypeObserverEvent          = domain.TypeObserverEvent
	TypeExtension              = domain.TypeExtension
	TypeClientDetails          = domain.TypeClientDetails
)

// Source produces raw frames for exactly one pipeline.
type Source = ports.Source

// Decoder turns a frame into a record.
type Decoder = ports.Decoder

// Transformation rewrites or drops records.
type Transformation = ports.Transformation

// Sink writes batches of records.
type Sink = ports.Sink

// Observability receives pipeline metrics.
type Observability = ports.Observability

// MemoryQueue is the in-process frame queue behind the "memory" source type.
type MemoryQueue = source.Memory

// ChannelSink exposes written batches on a channel.
type ChannelSink = sink.ChannelSink

// BatchFunc receives every batch written to a callback sink.
type BatchFunc = sink.BatchFunc

// BuildContext is passed to stage factories.
type BuildContext = manager.BuildContext

type (
	SourceFactory         = manager.SourceFactory
	DecoderFactory        = manager.DecoderFactory
	TransformationFactory = manager.TransformationFactory
	SinkFactory           = manager.SinkFactory
)

// NewRecord builds a record whose header type matches the payload kind.
func NewRecord(h Header, p Payload) (*Record, error) {
	return domain.NewRecord(h, p)
}

// NewCallbackSink adapts fn to a Sink.
func NewCallbackSink(name string, fn BatchFunc) Sink {
	return sink.NewCallbackSink(name, fn)
}

// NewChannelSink exposes written batches on a channel.
func NewChannelSink(name string, buffer int) *ChannelSink {
	return sink.NewChannelSink(name, buffer)
}
