package http3

import (
	"bytes"
	"testing"

	"github.com/hnakamur/h3quic/varint"
)

func readSettingsFrame(t *testing.T, frame []byte) Settings {
	t.Helper()
	r := bytes.NewReader(frame)
	h, err := readFrameHeader(r)
	if err != nil {
		t.Fatal(err)
	}
	body, err := readFramePayload(r, h, maxSettingsFrameSize)
	if err != nil {
		t.Fatal(err)
	}
	got, err := readSettings(h, body)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func TestSettingsRoundTrip(t *testing.T) {
	s := Settings{
		QPACKMaxTableCapacity: 4096,
		QPACKBlockedStreams:   16,
		MaxFieldSectionSize:   1 << 16,
		EnableConnectProtocol: true,
	}
	got := readSettingsFrame(t, s.appendFrame(nil))
	if got.QPACKMaxTableCapacity != s.QPACKMaxTableCapacity ||
		got.QPACKBlockedStreams != s.QPACKBlockedStreams ||
		got.MaxFieldSectionSize != s.MaxFieldSectionSize ||
		got.EnableConnectProtocol != s.EnableConnectProtocol {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestSettingsRejectsDuplicateID(t *testing.T) {
	var payload []byte
	payload = varint.Append(payload, uint64(SettingMaxFieldSectionSize))
	payload = varint.Append(payload, 100)
	payload = varint.Append(payload, uint64(SettingMaxFieldSectionSize))
	payload = varint.Append(payload, 200)

	h := frameHeader{Type: FrameTypeSettings, Length: uint64(len(payload))}
	if _, err := readSettings(h, payload); err == nil {
		t.Fatal("expected an error for a duplicate SETTINGS id")
	}
}

func TestSettingsSkipsGreaseID(t *testing.T) {
	var payload []byte
	payload = varint.Append(payload, 0x21) // a grease identifier
	payload = varint.Append(payload, 1)
	payload = varint.Append(payload, uint64(SettingMaxFieldSectionSize))
	payload = varint.Append(payload, 100)

	h := frameHeader{Type: FrameTypeSettings, Length: uint64(len(payload))}
	got, err := readSettings(h, payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxFieldSectionSize != 100 {
		t.Fatalf("got %+v", got)
	}
	if len(got.Unknown) != 0 {
		t.Fatalf("grease identifiers must not be retained as Unknown: %+v", got.Unknown)
	}
}
