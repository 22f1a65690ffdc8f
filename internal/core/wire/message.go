// Package wire implements the binary message protocol spoken between the
// master server and its peers. Messages are opcode-addressed: operation names
// are mapped to stable numeric op codes via an FNV-1a hash so that both ends
// can agree on routing without exchanging a registry.
package wire

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
)

// Kind distinguishes the three message shapes that share the frame format.
type Kind uint8

const (
	KindRequest Kind = iota
	KindResponse
	KindNotice
)

// headerSize is the fixed portion of every frame: total size (4), kind (1),
// status (1), op code (4), sequence (4).
const headerSize = 14

// maxMessageSize bounds how much a single peer can make the server buffer.
const maxMessageSize = 1 << 20

// Opcode returns the stable numeric op code for an operation name.
func Opcode(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}

// Message is one framed unit of communication. Requests carry a sequence
// number that the peer echoes back in the matching response; notices are
// fire-and-forget and carry sequence 0.
type Message struct {
	Kind    Kind
	Status  Status
	Op      uint32
	Seq     uint32
	Payload []byte
}

// NewRequest builds a request message for the named operation.
func NewRequest(op string, seq uint32, payload []byte) *Message {
	return &Message{Kind: KindRequest, Op: Opcode(op), Seq: seq, Payload: payload}
}

// NewNotice builds a fire-and-forget message for the named operation.
func NewNotice(op string, payload []byte) *Message {
	return &Message{Kind: KindNotice, Op: Opcode(op), Payload: payload}
}

// Respond builds the response to m with the provided status and payload,
// echoing back the op code and sequence number.
func (m *Message) Respond(status Status, payload []byte) *Message {
	return &Message{
		Kind:    KindResponse,
		Status:  status,
		Op:      m.Op,
		Seq:     m.Seq,
		Payload: payload,
	}
}

// Encode writes the framed message to w.
func (m *Message) Encode(w io.Writer) error {
	size := uint32(headerSize + len(m.Payload))
	if size > maxMessageSize {
		return fmt.Errorf("message exceeds maximum size: %d bytes", size)
	}

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:], size)
	header[4] = byte(m.Kind)
	header[5] = byte(m.Status)
	binary.LittleEndian.PutUint32(header[6:], m.Op)
	binary.LittleEndian.PutUint32(header[10:], m.Seq)

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(m.Payload) > 0 {
		if _, err := w.Write(m.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads the next framed message from r. It blocks until a full frame
// has been read and returns io.EOF unmodified so callers can detect a clean
// disconnect.
func Decode(r io.Reader) (*Message, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	size := binary.LittleEndian.Uint32(header[0:])
	if size < headerSize {
		return nil, fmt.Errorf("malformed frame: declared size %d below header size", size)
	}
	if size > maxMessageSize {
		return nil, fmt.Errorf("frame exceeds maximum size: %d bytes", size)
	}

	m := &Message{
		Kind:   Kind(header[4]),
		Status: Status(header[5]),
		Op:     binary.LittleEndian.Uint32(header[6:]),
		Seq:    binary.LittleEndian.Uint32(header[10:]),
	}

	if payloadLen := size - headerSize; payloadLen > 0 {
		m.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}
	return m, nil
}
