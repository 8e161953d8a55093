package packet

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single decoded frame, guarding a connection against
// a corrupt or hostile length prefix demanding an unbounded allocation.
const MaxFrameSize = 64 << 20 // 64 MiB

func init() {
	// Variables and Result carry arbitrary decoded YAML/JSON-shaped values;
	// gob needs every concrete dynamic type registered up front.
	gob.Register(map[string]any{})
	gob.Register([]any{})
	gob.Register(int64(0))
	gob.Register(float64(0))
}

// Encode writes pkt to w as a length-prefixed gob frame: a 4-byte
// big-endian length followed by that many bytes of gob-encoded Packet.
func Encode(w io.Writer, pkt *Packet) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pkt); err != nil {
		return fmt.Errorf("packet: encoding: %w", err)
	}
	if buf.Len() > MaxFrameSize {
		return fmt.Errorf("packet: encoded frame of %d bytes exceeds MaxFrameSize", buf.Len())
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("packet: writing length prefix: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("packet: writing frame body: %w", err)
	}
	return nil
}

// Decode reads one length-prefixed gob frame from r and returns the
// decoded Packet.
func Decode(r io.Reader) (*Packet, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return nil, fmt.Errorf("packet: frame of %d bytes exceeds MaxFrameSize", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("packet: reading frame body: %w", err)
	}

	var pkt Packet
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&pkt); err != nil {
		return nil, fmt.Errorf("packet: decoding: %w", err)
	}
	return &pkt, nil
}
