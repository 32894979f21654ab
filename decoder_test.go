package muxwire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFrame(t *testing.T, classID uint16, tag TypeTag, payload []byte) []byte {
	t.Helper()
	frame, err := encodeFrame(NewMessage(classID, tag, payload), 0)
	require.NoError(t, err)
	return frame
}

func feedAll(t *testing.T, d *Decoder, chunks ...[]byte) []*Message {
	t.Helper()
	var out []*Message
	for _, chunk := range chunks {
		msgs, err := d.Feed(chunk)
		require.NoError(t, err)
		out = append(out, msgs...)
	}
	return out
}

func TestDecoderSingleChunk(t *testing.T) {
	stream := append(mustFrame(t, 1, TagString, []byte("hello")), mustFrame(t, 2, TagBinary, []byte{0, 1, 2})...)

	d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
	msgs := feedAll(t, d, stream)

	require.Len(t, msgs, 2)
	assert.Equal(t, uint16(1), msgs[0].ClassID)
	assert.Equal(t, TagString, msgs[0].Tag)
	assert.Equal(t, []byte("hello"), msgs[0].Payload)
	assert.Equal(t, uint16(2), msgs[1].ClassID)
	assert.Equal(t, []byte{0, 1, 2}, msgs[1].Payload)
}

// Decoding must not depend on where the transport happened to split the
// stream: every possible split point yields the same message sequence.
func TestDecoderChunkingInvariance(t *testing.T) {
	var stream []byte
	stream = append(stream, mustFrame(t, 10, TagString, []byte("first"))...)
	stream = append(stream, mustFrame(t, 20, TagBinary, nil)...)
	// Payload that contains the frame magic itself.
	stream = append(stream, mustFrame(t, 30, TagBinary, []byte("MUX\x01MUX"))...)

	want := feedAll(t, NewDecoder(defaultMaxMessageSize, ^uint16(0)), stream)
	require.Len(t, want, 3)

	for split := 1; split < len(stream); split++ {
		d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
		got := feedAll(t, d, stream[:split], stream[split:])
		require.Equal(t, want, got, "split at byte %d", split)
	}

	t.Run("one byte at a time", func(t *testing.T) {
		d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
		var got []*Message
		for i := range stream {
			got = append(got, feedAll(t, d, stream[i:i+1])...)
		}
		require.Equal(t, want, got)
	})
}

func TestDecoderHeaderExampleSplit(t *testing.T) {
	// {class 3, string, "hi"} delivered as [first 2 bytes][rest] is still
	// exactly one message.
	frame := mustFrame(t, 3, TagString, []byte("hi"))

	d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
	msgs := feedAll(t, d, frame[:2], frame[2:])

	require.Len(t, msgs, 1)
	assert.Equal(t, uint16(3), msgs[0].ClassID)
	assert.Equal(t, TagString, msgs[0].Tag)
	assert.Equal(t, []byte("hi"), msgs[0].Payload)
}

func TestDecoderZeroPayloadAtChunkBoundary(t *testing.T) {
	frame := mustFrame(t, 5, TagBinary, nil)
	require.Len(t, frame, FixedHeaderLen)

	d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
	msgs := feedAll(t, d, frame)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Payload)
}

func TestDecoderEmptyChunk(t *testing.T) {
	d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
	msgs, err := d.Feed(nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDecoderOversizedFrame(t *testing.T) {
	// Declares more than the limit; the decoder must reject on the
	// declared length alone, before any payload is buffered.
	big := mustFrame(t, 1, TagBinary, make([]byte, 65))

	d := NewDecoder(64, ^uint16(0))
	_, err := d.Feed(big[:FixedHeaderLen])
	require.ErrorIs(t, err, ErrMessageTooLarge)

	// The failure sticks.
	_, err = d.Feed([]byte{0})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestDecoderEmitsBeforeFailing(t *testing.T) {
	good := mustFrame(t, 1, TagString, []byte("ok"))
	bad := mustFrame(t, 2, TagBinary, make([]byte, 100))

	d := NewDecoder(64, ^uint16(0))
	msgs, err := d.Feed(append(append([]byte{}, good...), bad...))
	require.ErrorIs(t, err, ErrMessageTooLarge)
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte("ok"), msgs[0].Payload)
}

func TestDecoderBadMagic(t *testing.T) {
	d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
	_, err := d.Feed([]byte("XXXXXXXXXXXXXXXX"))
	require.ErrorIs(t, err, ErrProtocol)

	_, err = d.Feed(mustFrame(t, 1, TagBinary, nil))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecoderClassAboveMaximum(t *testing.T) {
	d := NewDecoder(defaultMaxMessageSize, 10)
	_, err := d.Feed(mustFrame(t, 11, TagBinary, nil))
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestDecoderCompressedFlag(t *testing.T) {
	frame, err := encodeFrame(NewMessage(1, TagBinary, []byte{1, 2, 3}), flagCompressed)
	require.NoError(t, err)

	d := NewDecoder(defaultMaxMessageSize, ^uint16(0))
	msgs := feedAll(t, d, frame)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].compressed)
}
