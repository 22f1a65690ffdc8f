package wire

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOpcodeIsStable(t *testing.T) {
	if Opcode("spawner.request_spawn") != Opcode("spawner.request_spawn") {
		t.Fatal("op code for the same name differed between calls")
	}
	if Opcode("spawner.request_spawn") == Opcode("rooms.get_access") {
		t.Fatal("distinct operation names hashed to the same op code")
	}
}

func TestMessageRoundTrip(t *testing.T) {
	var payload Writer
	payload.WriteString("Arena1")
	payload.WriteUint32(8)
	payload.WriteBool(true)
	payload.WriteStringMap(map[string]string{"region": "eu", "mode": "ctf"})

	req := NewRequest("rooms.get_access", 42, payload.Bytes())

	var framed bytes.Buffer
	if err := req.Encode(&framed); err != nil {
		t.Fatalf("Encode() returned an unexpected error: %v", err)
	}

	decoded, err := Decode(&framed)
	if err != nil {
		t.Fatalf("Decode() returned an unexpected error: %v", err)
	}
	if diff := cmp.Diff(req, decoded); diff != "" {
		t.Errorf("decoded message did not match encoded; diff:\n%s", diff)
	}

	r := NewReader(decoded.Payload)
	name, err := r.ReadString()
	if err != nil || name != "Arena1" {
		t.Errorf("ReadString() = (%q, %v), want (Arena1, nil)", name, err)
	}
	maxPlayers, err := r.ReadUint32()
	if err != nil || maxPlayers != 8 {
		t.Errorf("ReadUint32() = (%d, %v), want (8, nil)", maxPlayers, err)
	}
	public, err := r.ReadBool()
	if err != nil || !public {
		t.Errorf("ReadBool() = (%v, %v), want (true, nil)", public, err)
	}
	props, err := r.ReadStringMap()
	if err != nil {
		t.Fatalf("ReadStringMap() returned an unexpected error: %v", err)
	}
	if diff := cmp.Diff(map[string]string{"region": "eu", "mode": "ctf"}, props); diff != "" {
		t.Errorf("properties did not survive the round trip; diff:\n%s", diff)
	}
}

func TestRespondEchoesRouting(t *testing.T) {
	req := NewRequest("lobby.join", 7, nil)
	resp := req.Respond(StatusUnauthorized, []byte("no session"))

	if resp.Kind != KindResponse {
		t.Errorf("Respond() kind = %v, want KindResponse", resp.Kind)
	}
	if resp.Op != req.Op || resp.Seq != req.Seq {
		t.Errorf("Respond() did not echo op/seq: got (%d, %d), want (%d, %d)",
			resp.Op, resp.Seq, req.Op, req.Seq)
	}
	if resp.Status != StatusUnauthorized {
		t.Errorf("Respond() status = %v, want StatusUnauthorized", resp.Status)
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{
			name:  "declared size below header size",
			frame: []byte{0x01, 0x00, 0x00, 0x00, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:  "declared size above maximum",
			frame: []byte{0xFF, 0xFF, 0xFF, 0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(bytes.NewReader(tt.frame)); err == nil {
				t.Error("Decode() accepted a malformed frame")
			}
		})
	}
}

func TestDecodeReturnsEOFOnCleanDisconnect(t *testing.T) {
	if _, err := Decode(bytes.NewReader(nil)); err != io.EOF {
		t.Errorf("Decode() on an empty stream = %v, want io.EOF", err)
	}
}

func TestWriteStringCapsAtLengthPrefix(t *testing.T) {
	var w Writer
	w.WriteString(strings.Repeat("a", math.MaxUint16+100))

	got, err := NewReader(w.Bytes()).ReadString()
	if err != nil {
		t.Fatalf("ReadString() returned an unexpected error: %v", err)
	}
	if len(got) != math.MaxUint16 {
		t.Errorf("oversized string round-tripped as %d bytes, want %d", len(got), math.MaxUint16)
	}
}

func TestReaderShortPayload(t *testing.T) {
	var w Writer
	w.WriteUint16(3)

	r := NewReader(w.Bytes())
	if _, err := r.ReadUint32(); err == nil {
		t.Error("ReadUint32() succeeded on a two byte payload")
	}
}
