// Package muxwire turns a stream socket (TCP or Unix) into a sequence of
// discrete, typed messages. It provides length-prefixed framing, an
// incremental decoder that tolerates arbitrary fragmentation, and a
// class-based multiplexer so unrelated message streams can share one
// connection.
package muxwire

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Connection lifecycle states. Open permits both directions, Closing
// rejects new sends while the read side drains, Closed is terminal.
const (
	stateOpen int32 = iota
	stateClosing
	stateClosed
)

// Conn owns one stream socket and both directions of traffic on it:
// a read loop feeding the incremental decoder and a serialized write
// path that puts whole frames on the wire.
type Conn struct {
	rawConn net.Conn
	decoder *Decoder
	mux     *mux
	logger  Logger

	opts options

	writeMu sync.Mutex
	state   atomic.Int32
}

// NewConn creates a connection wrapper around the given stream socket.
// It applies the provided options and validates them before returning.
// The socket must already be connected; muxwire never dials, listens or
// negotiates TLS on its own.
func NewConn(conn net.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		rawConn: conn,
		decoder: NewDecoder(opts.maxMessageSize, opts.maxClassID),
		mux:     newMux(opts.unroutable, opts.pendingCap),
		logger:  opts.logger,
		opts:    opts,
	}, nil
}

// Registry returns the payload codec registry the connection was
// configured with.
func (c *Conn) Registry() *Registry {
	return c.opts.registry
}

// Subscribe installs the handler for a class. Channels are implicit:
// subscribing is the only setup a class needs. Messages buffered under
// the UnroutableBuffer policy are flushed, in arrival order, on the
// caller's goroutine; subscribe before Run to avoid racing that flush
// against live traffic.
func (c *Conn) Subscribe(classID uint16, h MessageHandler) error {
	if classID > c.opts.maxClassID {
		return errors.Errorf("class %d above maximum %d", classID, c.opts.maxClassID)
	}
	return c.mux.subscribe(classID, h)
}

// Run starts the read loop and blocks until the socket closes, a fatal
// protocol error occurs, or the context is canceled. The connection is
// closed when Run returns. Sends are accepted as soon as the Conn is
// constructed; Run only drives the receive side.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"max_message_size", c.opts.maxMessageSize,
		"max_class_id", c.opts.maxClassID,
		"read_buffer_size", c.opts.readBufferSize,
		"compress", c.opts.compress)
	metrics.IncrCounter(MetricConnEstablished, 1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, child := errgroup.WithContext(ctx)

	// The read loop cancels on the way out so the watcher always wakes,
	// including on an orderly nil return (remote EOF, local close).
	group.Go(func() error {
		defer cancel()
		return c.readLoop(child)
	})

	// Closing the socket is the only way to unblock a pending Read, so a
	// watcher turns cancellation into closure promptly.
	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()
	metrics.IncrCounter(MetricConnClosed, 1)

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Send frames the payload and writes it to the socket. It blocks until
// the whole frame is on the wire and returns any write error
// synchronously. Concurrent senders are serialized per frame; frames are
// never byte-interleaved, but no ordering is promised between sends
// racing each other.
func (c *Conn) Send(classID uint16, tag TypeTag, payload []byte) error {
	if c.state.Load() != stateOpen {
		return ErrConnectionClosed
	}
	if classID > c.opts.maxClassID {
		return errors.Wrapf(ErrEncoding, "class %d above maximum %d", classID, c.opts.maxClassID)
	}
	if len(payload) > c.opts.maxMessageSize {
		return errors.Wrapf(ErrMessageTooLarge, "payload of %d bytes, limit %d", len(payload), c.opts.maxMessageSize)
	}

	var flags byte
	if c.opts.compress {
		compressed, err := compressPayload(payload, c.opts.compressLevel)
		if err != nil {
			return errors.Wrap(err, "compress payload")
		}
		payload = compressed
		flags |= flagCompressed
	}

	frame, err := encodeFrame(NewMessage(classID, tag, payload), flags)
	if err != nil {
		return err
	}

	return c.writeFrame(frame)
}

// SendValue encodes a value with the codec registered for tag and sends
// the result on the given class.
func (c *Conn) SendValue(classID uint16, tag TypeTag, v any) error {
	payload, err := c.opts.registry.Encode(tag, v)
	if err != nil {
		return err
	}
	return c.Send(classID, tag, payload)
}

// Shutdown requests a graceful close: new sends are rejected, the write
// side is half-closed so the peer observes EOF, and the read loop keeps
// draining until the peer closes its own side. Sockets without
// half-close support (no CloseWrite method) are closed outright instead,
// since the peer would otherwise wait for an EOF that never comes.
func (c *Conn) Shutdown() error {
	if !c.state.CompareAndSwap(stateOpen, stateClosing) {
		return ErrConnectionClosed
	}
	c.logger.Info("connection closing", "addr", c.Addr())

	// Taking the write mutex lets an in-flight frame finish first.
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := c.rawConn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return c.Close()
}

// Close closes the connection immediately. Pending reads and writes are
// unblocked and fail with ErrConnectionClosed. Safe to call multiple
// times.
func (c *Conn) Close() error {
	if c.state.Swap(stateClosed) == stateClosed {
		return nil
	}
	// Closing the socket unblocks a pending Read; the read loop then
	// observes the closed state and winds Run down.
	return c.rawConn.Close()
}

// IsClosed returns true once the connection has reached its terminal
// state.
func (c *Conn) IsClosed() bool {
	return c.state.Load() == stateClosed
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop reads whatever the socket has, feeds it to the decoder and
// delivers every completed message. Chunk boundaries are meaningless
// here: one read may complete zero messages or several.
func (c *Conn) readLoop(ctx context.Context) error {
	buf := make([]byte, c.opts.readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := c.rawConn.Read(buf)
		if n > 0 {
			metrics.IncrCounter(MetricBytesIn, float32(n))

			msgs, derr := c.decoder.Feed(buf[:n])
			for _, m := range msgs {
				if err := c.deliver(m); err != nil {
					return err
				}
			}
			if derr != nil {
				// The byte stream is no longer trustworthy.
				c.logger.Error("stream corrupt", "addr", c.Addr(), "error", derr)
				return derr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Orderly remote close.
				return nil
			}
			if c.state.Load() != stateOpen || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// deliver decompresses a message if needed and routes it through the
// multiplexer. Recoverable errors are passed to the onError callback;
// Disconnect answers propagate and end the read loop.
func (c *Conn) deliver(m *Message) error {
	metrics.IncrCounter(MetricFramesIn, 1)

	if m.compressed {
		payload, err := decompressPayload(m.Payload, c.opts.maxMessageSize)
		if err != nil {
			c.logger.Warn("bad compressed payload", "addr", c.Addr(), "class", m.ClassID, "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
			return nil
		}
		m = NewMessage(m.ClassID, m.Tag, payload)
	}

	if err := c.mux.dispatch(m); err != nil {
		if isUnroutable(err) {
			metrics.IncrCounter(MetricUnroutable, 1)
			c.logger.Debug("unroutable message", "addr", c.Addr(), "class", m.ClassID, "error", err)
		}
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}
	return nil
}

// writeFrame puts one whole frame on the wire. A stream write may
// transfer fewer bytes than requested, so the tail is retried until the
// frame is complete or the socket fails.
func (c *Conn) writeFrame(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.state.Load() != stateOpen {
		return ErrConnectionClosed
	}

	for sent := 0; sent < len(frame); {
		n, err := c.rawConn.Write(frame[sent:])
		sent += n
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrConnectionClosed
			}
			return err
		}
	}

	metrics.IncrCounter(MetricFramesOut, 1)
	metrics.IncrCounter(MetricBytesOut, float32(len(frame)))
	return nil
}

// closeConn marks the connection as closed and closes the socket.
func (c *Conn) closeConn() {
	if c.state.Swap(stateClosed) != stateClosed {
		c.rawConn.Close()
	}
}

func compressPayload(payload []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(payload); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decompressPayload inflates a compressed payload, holding the result to
// the same bound the decoder applies to declared lengths.
func decompressPayload(payload []byte, limit int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "decompress payload")
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, errors.Wrap(err, "decompress payload")
	}
	if len(out) > limit {
		return nil, errors.Wrapf(ErrMessageTooLarge, "decompressed payload exceeds %d bytes", limit)
	}
	return out, nil
}
