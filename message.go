package muxwire

import "fmt"

// TypeTag identifies the kind of payload a message carries. Tags select
// the payload codec on both ends; the core never interprets the bytes.
type TypeTag uint16

// Built-in type tags. Tags below TagCustomBase are reserved for the
// protocol; applications register their own codecs at TagCustomBase and
// above.
const (
	TagBinary TypeTag = 1 // raw bytes, passed through unmodified
	TagString TypeTag = 2 // UTF-8 text
	TagJSON   TypeTag = 3 // JSON document

	// TagCustomBase is the first tag available for application codecs
	// (protobuf, msgpack, ...).
	TagCustomBase TypeTag = 0x0100
)

// Valid reports whether t is a built-in tag or inside the custom range.
// Frames carrying any other tag are rejected as a protocol violation.
func (t TypeTag) Valid() bool {
	return (t >= TagBinary && t <= TagJSON) || t >= TagCustomBase
}

func (t TypeTag) String() string {
	switch t {
	case TagBinary:
		return "binary"
	case TagString:
		return "string"
	case TagJSON:
		return "json"
	default:
		return fmt.Sprintf("custom(0x%04x)", uint16(t))
	}
}

// Message is the unit of exchange: an opaque payload addressed to a
// logical channel (ClassID) and tagged with its payload kind. A Message
// is treated as immutable once constructed; the payload length is always
// encoded exactly, so payload bytes may contain anything, including
// byte sequences that look like frame headers.
type Message struct {
	ClassID uint16
	Tag     TypeTag
	Payload []byte

	// compressed marks a decoded frame whose payload is still a zlib
	// stream; the connection clears it during delivery.
	compressed bool
}

// NewMessage constructs a Message for the given class and payload kind.
func NewMessage(classID uint16, tag TypeTag, payload []byte) *Message {
	return &Message{
		ClassID: classID,
		Tag:     tag,
		Payload: payload,
	}
}
