package muxwire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Wire layout, all integers big-endian:
//
//	magic   3 bytes "MUX"
//	version 1 byte
//	flags   1 byte
//	classID uint16
//	typeTag uint16
//	length  uint32 (exact payload byte count)
//	payload length bytes
//
// The header length is constant, so the decoder always knows exactly how
// many more bytes it needs.
const (
	// FixedHeaderLen is the size of the frame header in bytes.
	FixedHeaderLen = 13

	// ProtocolVersion is the wire version carried by every frame.
	ProtocolVersion = 1

	flagCompressed byte = 0x01
)

var frameMagic = [3]byte{'M', 'U', 'X'}

// frameHeader is the decoded fixed header of one frame.
type frameHeader struct {
	flags      byte
	classID    uint16
	tag        TypeTag
	payloadLen uint32
}

// encodeFrame serializes a message into a single wire frame. The flags
// byte travels as given; callers that compress the payload must pass the
// already-compressed bytes and set flagCompressed themselves.
func encodeFrame(m *Message, flags byte) ([]byte, error) {
	if !m.Tag.Valid() {
		return nil, errors.Wrapf(ErrEncoding, "type tag 0x%04x outside valid range", uint16(m.Tag))
	}
	if uint64(len(m.Payload)) > math.MaxUint32 {
		return nil, errors.Wrapf(ErrEncoding, "payload of %d bytes exceeds length field", len(m.Payload))
	}

	buf := make([]byte, FixedHeaderLen+len(m.Payload))
	copy(buf[0:3], frameMagic[:])
	buf[3] = ProtocolVersion
	buf[4] = flags
	binary.BigEndian.PutUint16(buf[5:7], m.ClassID)
	binary.BigEndian.PutUint16(buf[7:9], uint16(m.Tag))
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(m.Payload)))
	copy(buf[FixedHeaderLen:], m.Payload)

	return buf, nil
}

// decodeHeader parses a fixed header. It is a pure function: it never
// looks past the header bytes and performs no I/O.
func decodeHeader(b []byte) (frameHeader, error) {
	var h frameHeader

	if len(b) < FixedHeaderLen {
		return h, errors.Wrapf(ErrProtocol, "short header: %d bytes", len(b))
	}
	if b[0] != frameMagic[0] || b[1] != frameMagic[1] || b[2] != frameMagic[2] {
		return h, errors.Wrap(ErrProtocol, "bad magic")
	}
	if b[3] != ProtocolVersion {
		return h, errors.Wrapf(ErrProtocol, "unsupported version %d", b[3])
	}

	h.flags = b[4]
	h.classID = binary.BigEndian.Uint16(b[5:7])
	h.tag = TypeTag(binary.BigEndian.Uint16(b[7:9]))
	h.payloadLen = binary.BigEndian.Uint32(b[9:13])

	if !h.tag.Valid() {
		return frameHeader{}, errors.Wrapf(ErrProtocol, "type tag 0x%04x outside valid range", uint16(h.tag))
	}

	return h, nil
}
