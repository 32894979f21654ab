package muxwire

import "errors"

// Errors returned by muxwire operations.
var (
	// ErrEncoding is returned when a message cannot be represented on the
	// wire (invalid type tag, payload length beyond the length field).
	// The connection stays usable; the caller can fix the message.
	ErrEncoding = errors.New("message cannot be encoded")

	// ErrProtocol is returned when an incoming frame header is not valid:
	// wrong magic or version (foreign peer, desynchronized stream) or a
	// type tag outside the valid range. Fatal to the connection — the
	// byte stream can no longer be trusted.
	ErrProtocol = errors.New("invalid frame header")

	// ErrMessageTooLarge is returned when a frame declares a payload
	// larger than the configured maximum. Fatal on receive: the stream
	// position inside the oversized frame cannot be skipped safely.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrUnroutable is returned when a decoded message has no handler
	// registered for its class. Reported, not fatal.
	ErrUnroutable = errors.New("no handler registered for class")

	// ErrCodecNotFound is returned by the registry when no payload codec
	// is registered for a type tag.
	ErrCodecNotFound = errors.New("no codec registered for type tag")
)

// ErrConnectionClosed is returned when operating on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Option validation errors.
var (
	// ErrInvalidCapacity is returned when the unroutable buffer policy
	// is selected without a positive capacity.
	ErrInvalidCapacity = errors.New("invalid pending buffer capacity")
	// ErrInvalidCompression is returned for a zlib level outside the
	// supported range.
	ErrInvalidCompression = errors.New("invalid compression level")
)

// isUnroutable reports whether err stems from the unroutable-message
// policy rather than from the transport or the framing layer.
func isUnroutable(err error) bool {
	return errors.Is(err, ErrUnroutable)
}
