package muxwire

import (
	"github.com/pkg/errors"
)

// Decoder phases. The decoder is always either collecting a fixed-size
// header or collecting the exact payload the header announced.
const (
	phaseHeader = iota
	phasePayload
)

// Decoder reassembles complete messages from a stream of arbitrarily
// sized byte chunks. A chunk may carry zero frames, a fraction of one,
// or many; Feed emits whatever completed, in wire order.
//
// A Decoder is owned by exactly one connection and is not safe for
// concurrent use.
type Decoder struct {
	maxMessageSize int
	maxClassID     uint16

	phase   int
	header  [FixedHeaderLen]byte
	headerN int

	hdr      frameHeader
	payload  []byte
	payloadN int

	err error
}

// NewDecoder returns a Decoder that rejects frames declaring more than
// maxMessageSize payload bytes or a class above maxClassID.
func NewDecoder(maxMessageSize int, maxClassID uint16) *Decoder {
	return &Decoder{
		maxMessageSize: maxMessageSize,
		maxClassID:     maxClassID,
	}
}

// Feed consumes one chunk and returns the messages it completed. Once
// Feed returns an error the stream is no longer trustworthy: the error
// sticks and every later call fails the same way. Messages emitted
// before the failing frame are still returned alongside the error.
func (d *Decoder) Feed(p []byte) ([]*Message, error) {
	if d.err != nil {
		return nil, d.err
	}

	var out []*Message

	for {
		if d.phase == phaseHeader {
			n := copy(d.header[d.headerN:], p)
			d.headerN += n
			p = p[n:]
			if d.headerN < FixedHeaderLen {
				return out, nil
			}

			hdr, err := decodeHeader(d.header[:])
			if err != nil {
				d.err = err
				return out, err
			}
			// Reject on the declared length alone, before a single
			// payload byte is buffered.
			if int64(hdr.payloadLen) > int64(d.maxMessageSize) {
				d.err = errors.Wrapf(ErrMessageTooLarge, "frame declares %d bytes, limit %d", hdr.payloadLen, d.maxMessageSize)
				return out, d.err
			}
			if hdr.classID > d.maxClassID {
				d.err = errors.Wrapf(ErrProtocol, "class %d above maximum %d", hdr.classID, d.maxClassID)
				return out, d.err
			}

			d.hdr = hdr
			d.payload = make([]byte, hdr.payloadLen)
			d.payloadN = 0
			d.phase = phasePayload
		}

		n := copy(d.payload[d.payloadN:], p)
		d.payloadN += n
		p = p[n:]
		if d.payloadN < len(d.payload) {
			return out, nil
		}

		out = append(out, &Message{
			ClassID:    d.hdr.classID,
			Tag:        d.hdr.tag,
			Payload:    d.payload,
			compressed: d.hdr.flags&flagCompressed != 0,
		})

		d.payload = nil
		d.headerN = 0
		d.phase = phaseHeader

		if len(p) == 0 {
			return out, nil
		}
	}
}
