package domain

import (
	"fmt"
	"strings"
)

// enumNames backs the text form of the small integer enums in this package.
type enumNames []string

func (n enumNames) name(i int) string {
	if i < 0 || i >= len(n) {
		return fmt.Sprintf("UNKNOWN(%d)", i)
	}
	return n[i]
}

func (n enumNames) parse(s string) (int, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range n {
		if name == s {
			return i, true
		}
	}
	return 0, false
}

// MediaKind is the kind of a media track.
type MediaKind int

const (
	MediaKindUnknown MediaKind = iota
	MediaKindAudio
	MediaKindVideo
)

var mediaKindNames = enumNames{"UNKNOWN", "AUDIO", "VIDEO"}

func (k MediaKind) String() string {
	return mediaKindNames.name(int(k))
}

func (MediaKind) Symbols() []string {
	return append([]string(nil), mediaKindNames...)
}

func (k MediaKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MediaKind) UnmarshalText(b []byte) error {
	i, ok := mediaKindNames.parse(string(b))
	if !ok {
		return fmt.Errorf("domain: unknown media kind %q", b)
	}
	*k = MediaKind(i)
	return nil
}

// Protocol is the transport protocol of an ICE candidate.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolUDP
	ProtocolTCP
)

var protocolNames = enumNames{"UNKNOWN", "UDP", "TCP"}

func (p Protocol) String() string {
	return protocolNames.name(int(p))
}

func (Protocol) Symbols() []string {
	return append([]string(nil), protocolNames...)
}

func (p Protocol) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Protocol) UnmarshalText(b []byte) error {
	i, ok := protocolNames.parse(string(b))
	if !ok {
		return fmt.Errorf("domain: unknown protocol %q", b)
	}
	*p = Protocol(i)
	return nil
}

// CandidateType is the ICE candidate type.
type CandidateType int

const (
	CandidateTypeUnknown CandidateType = iota
	CandidateTypeHost
	CandidateTypeSrflx
	CandidateTypePrflx
	CandidateTypeRelay
)

var candidateTypeNames = enumNames{"UNKNOWN", "HOST", "SRFLX", "PRFLX", "RELAY"}

func (c CandidateType) String() string {
	return candidateTypeNames.name(int(c))
}

func (CandidateType) Symbols() []string {
	return append([]string(nil), candidateTypeNames...)
}

func (c CandidateType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CandidateType) UnmarshalText(b []byte) error {
	i, ok := candidateTypeNames.parse(string(b))
	if !ok {
		return fmt.Errorf("domain: unknown candidate type %q", b)
	}
	*c = CandidateType(i)
	return nil
}
