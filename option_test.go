package muxwire

import (
	"compress/zlib"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckOptionsDefaults(t *testing.T) {
	var opts options
	require.NoError(t, checkOptions(&opts))

	assert.Equal(t, defaultMaxMessageSize, opts.maxMessageSize)
	assert.Equal(t, ^uint16(0), opts.maxClassID)
	assert.Equal(t, defaultReadBufferSize, opts.readBufferSize)
	assert.Equal(t, UnroutableFail, opts.unroutable)
	assert.False(t, opts.compress)
	assert.NotNil(t, opts.registry)
	assert.NotNil(t, opts.onError)
	assert.NotNil(t, opts.logger)
}

func TestCheckOptionsApplied(t *testing.T) {
	reg := NewRegistry()
	var opts options
	for _, o := range []Option{
		RegistryOption(reg),
		MessageMaxSize(512),
		MaxClassIDOption(31),
		ReadBufferSizeOption(128),
		UnroutableBufferOption(16),
		CompressionOption(zlib.BestSpeed),
	} {
		o(&opts)
	}
	require.NoError(t, checkOptions(&opts))

	assert.Same(t, reg, opts.registry)
	assert.Equal(t, 512, opts.maxMessageSize)
	assert.Equal(t, uint16(31), opts.maxClassID)
	assert.Equal(t, 128, opts.readBufferSize)
	assert.Equal(t, UnroutableBuffer, opts.unroutable)
	assert.Equal(t, 16, opts.pendingCap)
	assert.True(t, opts.compress)
	assert.Equal(t, zlib.BestSpeed, opts.compressLevel)
}

func TestCheckOptionsInvalidCapacity(t *testing.T) {
	var opts options
	UnroutableBufferOption(0)(&opts)
	assert.ErrorIs(t, checkOptions(&opts), ErrInvalidCapacity)
}

func TestCheckOptionsInvalidCompression(t *testing.T) {
	var opts options
	CompressionOption(42)(&opts)
	assert.ErrorIs(t, checkOptions(&opts), ErrInvalidCompression)

	opts = options{}
	CompressionOption(zlib.DefaultCompression)(&opts)
	assert.NoError(t, checkOptions(&opts))
}

func TestDefaultOnError(t *testing.T) {
	assert.Equal(t, Continue, defaultOnError(ErrUnroutable))
	assert.Equal(t, Disconnect, defaultOnError(ErrProtocol))
	assert.Equal(t, Disconnect, defaultOnError(assert.AnError))
}
