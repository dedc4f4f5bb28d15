package domain

import "fmt"

// Payload is the kind-specific body of a Record. The set of payloads is
// closed: every implementation lives in this file.
type Payload interface {
	Kind() RecordType
	payload()
}

// CallInitiated reports that a call was opened in a room.
type CallInitiated struct {
	ServiceID   string  `schema:"serviceId" json:"serviceId" msgpack:"serviceId"`
	RoomID      string  `schema:"roomId" json:"roomId" msgpack:"roomId"`
	CallID      string  `schema:"callId" json:"callId" msgpack:"callId"`
	MediaUnitID *string `schema:"mediaUnitId" json:"mediaUnitId" msgpack:"mediaUnitId"`
	ClientID    *string `schema:"clientId" json:"clientId" msgpack:"clientId"`
	UserID      *string `schema:"userId" json:"userId" msgpack:"userId"`
}

// CallFinished reports that a call ended.
type CallFinished struct {
	ServiceID string  `schema:"serviceId" json:"serviceId" msgpack:"serviceId"`
	RoomID    string  `schema:"roomId" json:"roomId" msgpack:"roomId"`
	CallID    string  `schema:"callId" json:"callId" msgpack:"callId"`
	Reason    *string `schema:"reason" json:"reason" msgpack:"reason"`
}

// PeerConnectionJoined reports a peer connection opened by a client of a call.
type PeerConnectionJoined struct {
	CallID           string  `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string  `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string  `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	UserID           *string `schema:"userId" json:"userId" msgpack:"userId"`
	Label            *string `schema:"label" json:"label" msgpack:"label"`
}

// PeerConnectionDetached reports a peer connection closed by a client of a call.
type PeerConnectionDetached struct {
	CallID           string  `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string  `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string  `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	UserID           *string `schema:"userId" json:"userId" msgpack:"userId"`
}

type InboundRTP struct {
	CallID           string    `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string    `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string    `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	TrackID          string    `schema:"trackId" json:"trackId" msgpack:"trackId"`
	SSRC             int64     `schema:"ssrc" json:"ssrc" msgpack:"ssrc"`
	MediaKind        MediaKind `schema:"kind" json:"kind" msgpack:"kind"`
	PacketsReceived  *int64    `schema:"packetsReceived" json:"packetsReceived" msgpack:"packetsReceived"`
	PacketsLost      *int32    `schema:"packetsLost" json:"packetsLost" msgpack:"packetsLost"`
	Jitter           *float64  `schema:"jitter" json:"jitter" msgpack:"jitter"`
	BytesReceived    *int64    `schema:"bytesReceived" json:"bytesReceived" msgpack:"bytesReceived"`
}

type OutboundRTP struct {
	CallID           string    `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string    `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string    `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	TrackID          string    `schema:"trackId" json:"trackId" msgpack:"trackId"`
	SSRC             int64     `schema:"ssrc" json:"ssrc" msgpack:"ssrc"`
	MediaKind        MediaKind `schema:"kind" json:"kind" msgpack:"kind"`
	PacketsSent      *int64    `schema:"packetsSent" json:"packetsSent" msgpack:"packetsSent"`
	BytesSent        *int64    `schema:"bytesSent" json:"bytesSent" msgpack:"bytesSent"`
	TargetBitrate    *float64  `schema:"targetBitrate" json:"targetBitrate" msgpack:"targetBitrate"`
}

type RemoteInboundRTP struct {
	CallID           string    `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string    `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string    `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	SSRC             int64     `schema:"ssrc" json:"ssrc" msgpack:"ssrc"`
	MediaKind        MediaKind `schema:"kind" json:"kind" msgpack:"kind"`
	RoundTripTime    *float64  `schema:"roundTripTime" json:"roundTripTime" msgpack:"roundTripTime"`
	FractionLost     *float32  `schema:"fractionLost" json:"fractionLost" msgpack:"fractionLost"`
	PacketsLost      *int32    `schema:"packetsLost" json:"packetsLost" msgpack:"packetsLost"`
}

type ICECandidate struct {
	CallID           string        `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string        `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string        `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	CandidateID      string        `schema:"candidateId" json:"candidateId" msgpack:"candidateId"`
	Address          *string       `schema:"address" json:"address" msgpack:"address"`
	Port             *int32        `schema:"port" json:"port" msgpack:"port"`
	Protocol         Protocol      `schema:"protocol" json:"protocol" msgpack:"protocol"`
	CandidateType    CandidateType `schema:"candidateType" json:"candidateType" msgpack:"candidateType"`
	Priority         *int64        `schema:"priority" json:"priority" msgpack:"priority"`
}

type ICECandidatePair struct {
	CallID                   string   `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID                 string   `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID         string   `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	CandidatePairID          string   `schema:"candidatePairId" json:"candidatePairId" msgpack:"candidatePairId"`
	LocalCandidateID         *string  `schema:"localCandidateId" json:"localCandidateId" msgpack:"localCandidateId"`
	RemoteCandidateID        *string  `schema:"remoteCandidateId" json:"remoteCandidateId" msgpack:"remoteCandidateId"`
	Nominated                *bool    `schema:"nominated" json:"nominated" msgpack:"nominated"`
	CurrentRoundTripTime     *float64 `schema:"currentRoundTripTime" json:"currentRoundTripTime" msgpack:"currentRoundTripTime"`
	AvailableOutgoingBitrate *float64 `schema:"availableOutgoingBitrate" json:"availableOutgoingBitrate" msgpack:"availableOutgoingBitrate"`
}

type MediaSource struct {
	CallID          string    `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID        string    `schema:"clientId" json:"clientId" msgpack:"clientId"`
	TrackID         string    `schema:"trackId" json:"trackId" msgpack:"trackId"`
	MediaKind       MediaKind `schema:"kind" json:"kind" msgpack:"kind"`
	AudioLevel      *float64  `schema:"audioLevel" json:"audioLevel" msgpack:"audioLevel"`
	FramesPerSecond *float64  `schema:"framesPerSecond" json:"framesPerSecond" msgpack:"framesPerSecond"`
	Width           *int32    `schema:"width" json:"width" msgpack:"width"`
	Height          *int32    `schema:"height" json:"height" msgpack:"height"`
}

type Track struct {
	CallID           string    `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID         string    `schema:"clientId" json:"clientId" msgpack:"clientId"`
	PeerConnectionID string    `schema:"peerConnectionId" json:"peerConnectionId" msgpack:"peerConnectionId"`
	TrackID          string    `schema:"trackId" json:"trackId" msgpack:"trackId"`
	MediaKind        MediaKind `schema:"kind" json:"kind" msgpack:"kind"`
	Remote           bool      `schema:"remote" json:"remote" msgpack:"remote"`
	SFUStreamID      *string   `schema:"sfuStreamId" json:"sfuStreamId" msgpack:"sfuStreamId"`
}

type UserMediaError struct {
	CallID   string `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID string `schema:"clientId" json:"clientId" msgpack:"clientId"`
	Message  string `schema:"message" json:"message" msgpack:"message"`
}

// ObserverEvent is an event raised by the observer itself rather than a client.
type ObserverEvent struct {
	ServiceID   string  `schema:"serviceId" json:"serviceId" msgpack:"serviceId"`
	Name        string  `schema:"name" json:"name" msgpack:"name"`
	CallID      *string `schema:"callId" json:"callId" msgpack:"callId"`
	Attachments *string `schema:"attachments" json:"attachments" msgpack:"attachments"`
}

// Extension carries an application-defined report.
type Extension struct {
	CallID        string `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID      string `schema:"clientId" json:"clientId" msgpack:"clientId"`
	ExtensionType string `schema:"extensionType" json:"extensionType" msgpack:"extensionType"`
	Data          []byte `schema:"data" json:"data" msgpack:"data"`
}

type ClientDetails struct {
	CallID         string  `schema:"callId" json:"callId" msgpack:"callId"`
	ClientID       string  `schema:"clientId" json:"clientId" msgpack:"clientId"`
	OSName         *string `schema:"osName" json:"osName" msgpack:"osName"`
	BrowserName    *string `schema:"browserName" json:"browserName" msgpack:"browserName"`
	BrowserVersion *string `schema:"browserVersion" json:"browserVersion" msgpack:"browserVersion"`
	DeviceModel    *string `schema:"deviceModel" json:"deviceModel" msgpack:"deviceModel"`
	Platform       *string `schema:"platform" json:"platform" msgpack:"platform"`
}

func (*CallInitiated) Kind() RecordType {
	return TypeCallInitiated
}

func (*CallInitiated) payload() {}

func (*CallFinished) Kind() RecordType {
	return TypeCallFinished
}

func (*CallFinished) payload() {}

func (*PeerConnectionJoined) Kind() RecordType {
	return TypePeerConnectionJoined
}

func (*PeerConnectionJoined) payload() {}

func (*PeerConnectionDetached) Kind() RecordType {
	return TypePeerConnectionDetached
}

func (*PeerConnectionDetached) payload() {}

func (*InboundRTP) Kind() RecordType {
	return TypeInboundRTP
}

func (*InboundRTP) payload() {}

func (*OutboundRTP) Kind() RecordType {
	return TypeOutboundRTP
}

func (*OutboundRTP) payload() {}

func (*RemoteInboundRTP) Kind() RecordType {
	return TypeRemoteInboundRTP
}

func (*RemoteInboundRTP) payload() {}

func (*ICECandidate) Kind() RecordType {
	return TypeICECandidate
}

func (*ICECandidate) payload() {}

func (*ICECandidatePair) Kind() RecordType {
	return TypeICECandidatePair
}

func (*ICECandidatePair) payload() {}

func (*MediaSource) Kind() RecordType {
	return TypeMediaSource
}

func (*MediaSource) payload() {}

func (*Track) Kind() RecordType {
	return TypeTrack
}

func (*Track) payload() {}

func (*UserMediaError) Kind() RecordType {
	return TypeUserMediaError
}

func (*UserMediaError) payload() {}

func (*ObserverEvent) Kind() RecordType {
	return TypeObserverEvent
}

func (*ObserverEvent) payload() {}

func (*Extension) Kind() RecordType {
	return TypeExtension
}

func (*Extension) payload() {}

func (*ClientDetails) Kind() RecordType {
	return TypeClientDetails
}

func (*ClientDetails) payload() {}

// NewPayload returns an empty payload for kind, suitable as a decode target.
func NewPayload(kind RecordType) (Payload, error) {
	switch kind {
	case TypeCallInitiated:
		return &CallInitiated{}, nil
	case TypeCallFinished:
		return &CallFinished{}, nil
	case TypePeerConnectionJoined:
		return &PeerConnectionJoined{}, nil
	case TypePeerConnectionDetached:
		return &PeerConnectionDetached{}, nil
	case TypeInboundRTP:
		return &InboundRTP{}, nil
	case TypeOutboundRTP:
		return &OutboundRTP{}, nil
	case TypeRemoteInboundRTP:
		return &RemoteInboundRTP{}, nil
	case TypeICECandidate:
		return &ICECandidate{}, nil
	case TypeICECandidatePair:
		return &ICECandidatePair{}, nil
	case TypeMediaSource:
		return &MediaSource{}, nil
	case TypeTrack:
		return &Track{}, nil
	case TypeUserMediaError:
		return &UserMediaError{}, nil
	case TypeObserverEvent:
		return &ObserverEvent{}, nil
	case TypeExtension:
		return &Extension{}, nil
	case TypeClientDetails:
		return &ClientDetails{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownRecordType, int(kind))
}
