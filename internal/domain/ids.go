package domain

// CallAndPeerConnection returns the call and peer connection ids carried by
// r, empty when the kind has none.
func CallAndPeerConnection(r *Record) (callID, pcID string) {
	if r == nil {
		return "", ""
	}
	switch p := r.Payload.(type) {
	case *CallInitiated:
		return p.CallID, ""
	case *CallFinished:
		return p.CallID, ""
	case *PeerConnectionJoined:
		return p.CallID, p.PeerConnectionID
	case *PeerConnectionDetached:
		return p.CallID, p.PeerConnectionID
	case *InboundRTP:
		return p.CallID, p.PeerConnectionID
	case *OutboundRTP:
		return p.CallID, p.PeerConnectionID
	case *RemoteInboundRTP:
		return p.CallID, p.PeerConnectionID
	case *ICECandidate:
		return p.CallID, p.PeerConnectionID
	case *ICECandidatePair:
		return p.CallID, p.PeerConnectionID
	case *MediaSource:
		return p.CallID, ""
	case *Track:
		return p.CallID, p.PeerConnectionID
	case *UserMediaError:
		return p.CallID, ""
	case *ObserverEvent:
		if p.CallID != nil {
			return *p.CallID, ""
		}
	case *Extension:
		return p.CallID, ""
	case *ClientDetails:
		return p.CallID, ""
	}
	return "", ""
}
