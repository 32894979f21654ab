package muxwire

import "compress/zlib"

// options holds the configuration for a connection.
type options struct {
	registry *Registry
	logger   Logger

	// onError is consulted for recoverable receive-side errors.
	// Returns Disconnect to close the connection, Continue to go on.
	onError func(error) ErrorAction

	maxMessageSize int              // maximum payload size, send and receive
	maxClassID     uint16           // highest accepted class identifier
	readBufferSize int              // size of the read-chunk buffer
	unroutable     UnroutablePolicy // what to do with handlerless classes
	pendingCap     int              // per-class buffer capacity under UnroutableBuffer

	compress      bool // zlib-compress outgoing payloads
	compressLevel int
}

// ErrorAction defines the action to take when a recoverable error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and keeps the connection open.
	Continue
)

// Option is a function that configures connection options.
type Option func(*options)

// RegistryOption sets the payload codec registry. If not set, a fresh
// registry with only the built-in codecs is used.
func RegistryOption(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// MessageMaxSize sets the maximum payload size, applied to outgoing
// messages and to the declared length of incoming frames.
func MessageMaxSize(size int) Option {
	return func(o *options) {
		o.maxMessageSize = size
	}
}

// MaxClassIDOption sets the highest class identifier the connection
// accepts, locally and from the peer.
func MaxClassIDOption(id uint16) Option {
	return func(o *options) {
		o.maxClassID = id
	}
}

// ReadBufferSizeOption sets the size of the buffer the read loop hands
// to the socket. It bounds chunk size only, never message size.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// UnroutableBufferOption switches the unroutable-message policy from
// fail to buffer, holding up to capacity messages per class for a late
// Subscribe. The default policy reports and drops.
func UnroutableBufferOption(capacity int) Option {
	return func(o *options) {
		o.unroutable = UnroutableBuffer
		o.pendingCap = capacity
	}
}

// CompressionOption enables zlib compression of outgoing payloads at the
// given level (zlib.BestSpeed..zlib.BestCompression, or
// zlib.DefaultCompression). Incoming compressed frames are always
// decompressed regardless of this option.
func CompressionOption(level int) Option {
	return func(o *options) {
		o.compress = true
		o.compressLevel = level
	}
}

// OnErrorOption sets the callback consulted for recoverable
// receive-side errors (unroutable messages, payload decompression
// failures). Return Disconnect to close the connection, or Continue to
// suppress the error. Fatal protocol errors close the connection no
// matter what the callback returns.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption sets the logger. If not set, the default slog logger is
// used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Default configuration values.
const (
	// defaultMaxMessageSize is the default maximum payload size (1MB).
	defaultMaxMessageSize = 1024 * 1024
	// defaultReadBufferSize is the default read-chunk buffer size.
	defaultReadBufferSize = 4096
)

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.maxMessageSize <= 0 {
		opts.maxMessageSize = defaultMaxMessageSize
	}

	if opts.maxClassID == 0 {
		opts.maxClassID = ^uint16(0)
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.unroutable == UnroutableBuffer && opts.pendingCap <= 0 {
		return ErrInvalidCapacity
	}

	if opts.compress {
		if opts.compressLevel < zlib.HuffmanOnly || opts.compressLevel > zlib.BestCompression {
			return ErrInvalidCompression
		}
	}

	if opts.registry == nil {
		opts.registry = NewRegistry()
	}

	if opts.onError == nil {
		opts.onError = defaultOnError
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// defaultOnError keeps the connection open for unroutable messages and
// closes it for everything else.
func defaultOnError(err error) ErrorAction {
	if isUnroutable(err) {
		return Continue
	}
	return Disconnect
}
