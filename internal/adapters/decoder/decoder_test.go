package decoder

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ObserveRTC/connector-sub000/internal/domain"
)

func sampleRecord(t *testing.T) *domain.Record {
	t.Helper()
	marker := "m1"
	lost := int32(3)
	r, err := domain.NewRecord(
		domain.Header{Version: 2, Type: domain.TypeInboundRTP, OriginID: "o1", OriginName: "observer", TimestampMs: 1700, Marker: &marker},
		&domain.InboundRTP{CallID: "c", ClientID: "cl", PeerConnectionID: "pc", TrackID: "t", SSRC: 9, MediaKind: domain.MediaKindVideo, PacketsLost: &lost},
	)
	require.NoError(t, err)
	return r
}

func TestJSONDecodeEnvelope(t *testing.T) {
	frame := []byte(`{"version":1,"type":"CALL_INITIATED","originId":"o","originName":"n","timestamp":5,
		"payload":{"serviceId":"s","roomId":"r","callId":"c","userId":"u","extra":true}}`)

	r, err := JSON{}.Decode(frame)
	require.NoError(t, err)
	require.Equal(t, domain.TypeCallInitiated, r.Type)
	require.Equal(t, int64(5), r.TimestampMs)
	require.Nil(t, r.Marker)

	p := r.Payload.(*domain.CallInitiated)
	require.Equal(t, "c", p.CallID)
	require.Equal(t, "u", *p.UserID)
	require.Nil(t, p.ClientID)
}

func TestJSONRoundTrip(t *testing.T) {
	r := sampleRecord(t)
	b, err := JSON{}.Encode(r)
	require.NoError(t, err)
	require.Contains(t, string(b), `"kind":"VIDEO"`)

	got, err := JSON{}.Decode(b)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestJSONErrors(t *testing.T) {
	cases := map[string]struct {
		frame string
		err   error
	}{
		"garbage":        {`{not json`, ErrMalformedFrame},
		"unknown type":   {`{"type":"NOPE","payload":{}}`, domain.ErrUnknownRecordType},
		"missing body":   {`{"type":"TRACK"}`, ErrMissingPayload},
		"null body":      {`{"type":"TRACK","payload":null}`, ErrMissingPayload},
		"bad body shape": {`{"type":"TRACK","payload":{"remote":"yes"}}`, ErrMalformedFrame},
		"bad enum":       {`{"type":"TRACK","payload":{"kind":"SMELL"}}`, ErrMalformedFrame},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := JSON{}.Decode([]byte(tc.frame))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestMsgpackRoundTrip(t *testing.T) {
	r := sampleRecord(t)
	b, err := Msgpack{}.Encode(r)
	require.NoError(t, err)

	got, err := Msgpack{}.Decode(b)
	require.NoError(t, err)
	require.Equal(t, r, got)
}

func TestMsgpackErrors(t *testing.T) {
	_, err := Msgpack{}.Decode([]byte{0xc1})
	require.ErrorIs(t, err, ErrMalformedFrame)

	b, err := msgpack.Marshal(map[string]any{"type": "CALL_FINISHED"})
	require.NoError(t, err)
	_, err = Msgpack{}.Decode(b)
	require.ErrorIs(t, err, ErrMissingPayload)

	b, err = msgpack.Marshal(map[string]any{"type": "bogus", "payload": map[string]any{}})
	require.NoError(t, err)
	_, err = Msgpack{}.Decode(b)
	require.ErrorIs(t, err, domain.ErrUnknownRecordType)
}

func TestEncodeRejectsInvalidRecords(t *testing.T) {
	_, err := JSON{}.Encode(&domain.Record{})
	require.ErrorIs(t, err, domain.ErrNilPayload)
}
