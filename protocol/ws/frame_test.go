package ws

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTripUnmasked(t *testing.T) {
	payload := []byte("hello websocket")
	encoded := Encode(OpcodeText, payload, true)

	f, consumed, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f == nil {
		t.Fatal("Decode() = nil, want a frame")
	}
	if consumed != len(encoded) {
		t.Fatalf("consumed = %d, want %d", consumed, len(encoded))
	}
	if !f.Fin || f.Opcode != OpcodeText || f.Masked {
		t.Fatalf("frame = %+v", f)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("Payload = %q, want %q", f.Payload, payload)
	}
}

func TestDecodeMaskedClientFrame(t *testing.T) {
	var raw []byte
	raw = append(raw, 0x81)       // FIN + text
	raw = append(raw, 0x85)       // masked, length 5
	key := [4]byte{1, 2, 3, 4}
	raw = append(raw, key[:]...)
	payload := []byte("hello")
	masked := make([]byte, len(payload))
	for i := range payload {
		masked[i] = payload[i] ^ key[i%4]
	}
	raw = append(raw, masked...)

	f, consumed, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if consumed != len(raw) {
		t.Fatalf("consumed = %d, want %d", consumed, len(raw))
	}
	if !f.Masked || string(f.Payload) != "hello" {
		t.Fatalf("frame = %+v", f)
	}
}

func TestDecodeIncompleteReturnsNil(t *testing.T) {
	f, consumed, err := Decode([]byte{0x81})
	if err != nil || f != nil || consumed != 0 {
		t.Fatalf("Decode() = %v, %v, %v, want (nil, 0, nil)", f, consumed, err)
	}
}

// TestDecodeOversizedDeclaredLengthRejectedImmediately mirrors the
// adversarial "WS frame header claiming 1 GB payload" scenario: Decode
// must reject as soon as the extended-length field is parsed, without
// ever waiting to buffer anywhere near the declared length.
func TestDecodeOversizedDeclaredLengthRejectedImmediately(t *testing.T) {
	var raw []byte
	raw = append(raw, 0x82) // FIN + binary
	raw = append(raw, 127)  // 8-byte extended length marker, unmasked
	var ext [8]byte
	giB := uint64(1) << 30
	for i := 7; i >= 0; i-- {
		ext[i] = byte(giB)
		giB >>= 8
	}
	raw = append(raw, ext[:]...)

	f, consumed, err := Decode(raw)
	if err == nil {
		t.Fatal("Decode() error = nil, want error for 1GB declared length")
	}
	if f != nil || consumed != 0 {
		t.Fatalf("Decode() = %+v, %d, want nil frame / 0 consumed on rejection", f, consumed)
	}
}

func TestDecodeControlFrameOverLimitRejected(t *testing.T) {
	var raw []byte
	raw = append(raw, 0x88|finBit) // close frame
	raw = append(raw, 126)
	var ext [2]byte
	ext[0] = 0
	ext[1] = 200 // 200 > MaxControlPayload
	raw = append(raw, ext[:]...)
	raw = append(raw, make([]byte, 200)...)

	_, _, err := Decode(raw)
	if err == nil {
		t.Fatal("Decode() error = nil, want error for oversized control frame")
	}
}

func TestMessageAccessorsZeroAfterInvalidate(t *testing.T) {
	m := NewMessage(OpcodeText, []byte("hi"))
	live := true
	m.SetLive(&live)
	if m.Text() != "hi" {
		t.Fatalf("Text() = %q before invalidate", m.Text())
	}
	m.Invalidate()
	if m.Text() != "" || m.Data() != nil || m.Opcode() != 0 {
		t.Fatalf("accessors not zeroed after Invalidate(): text=%q data=%v opcode=%v", m.Text(), m.Data(), m.Opcode())
	}
}
