package muxwire

import (
	"sync"

	"github.com/pkg/errors"
)

// MessageHandler consumes messages routed to one class. Handlers run on
// the connection's read goroutine, so messages of every class arrive in
// the order their frames completed on the wire.
type MessageHandler func(*Message) error

// UnroutablePolicy selects what happens to a decoded message whose class
// has no handler yet.
type UnroutablePolicy int

const (
	// UnroutableFail reports the message as unroutable and drops it.
	// The connection stays open.
	UnroutableFail UnroutablePolicy = iota
	// UnroutableBuffer holds messages for a late Subscribe, up to a
	// bounded capacity per class; beyond it they are dropped and the
	// overflow is reported.
	UnroutableBuffer
)

// mux routes decoded messages to per-class handlers. Channels exist
// implicitly: a class comes into being the first time it is observed and
// carries no state beyond routing.
type mux struct {
	policy   UnroutablePolicy
	capacity int

	mu       sync.Mutex
	handlers map[uint16]MessageHandler
	pending  map[uint16][]*Message
}

func newMux(policy UnroutablePolicy, capacity int) *mux {
	return &mux{
		policy:   policy,
		capacity: capacity,
		handlers: make(map[uint16]MessageHandler),
		pending:  make(map[uint16][]*Message),
	}
}

// subscribe installs the handler for a class and flushes, in arrival
// order, anything buffered for it. A handler error aborts the flush; the
// returned error states how many buffered messages were lost with it.
func (m *mux) subscribe(classID uint16, h MessageHandler) error {
	if h == nil {
		return errors.New("nil handler")
	}

	m.mu.Lock()
	if _, ok := m.handlers[classID]; ok {
		m.mu.Unlock()
		return errors.Errorf("class %d already has a handler", classID)
	}
	m.handlers[classID] = h
	buffered := m.pending[classID]
	delete(m.pending, classID)
	m.mu.Unlock()

	for i, msg := range buffered {
		if err := h(msg); err != nil {
			if dropped := len(buffered) - i - 1; dropped > 0 {
				return errors.Wrapf(err, "handler failed during flush of class %d, dropping %d buffered messages", classID, dropped)
			}
			return err
		}
	}
	return nil
}

// dispatch routes one decoded message. An ErrUnroutable return is
// recoverable; the caller decides whether to surface or suppress it.
func (m *mux) dispatch(msg *Message) error {
	m.mu.Lock()
	h, ok := m.handlers[msg.ClassID]
	if !ok {
		if m.policy == UnroutableBuffer {
			if len(m.pending[msg.ClassID]) < m.capacity {
				m.pending[msg.ClassID] = append(m.pending[msg.ClassID], msg)
				m.mu.Unlock()
				return nil
			}
			m.mu.Unlock()
			return errors.Wrapf(ErrUnroutable, "class %d pending buffer full, message dropped", msg.ClassID)
		}
		m.mu.Unlock()
		return errors.Wrapf(ErrUnroutable, "class %d", msg.ClassID)
	}
	m.mu.Unlock()

	return h(msg)
}
