package gatts

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// Write is one incoming attribute write reported by the radio.
type Write struct {
	Handle uint16
	Data   []byte
}

// Link is the server-side view of a connection: the base Conn plus the
// transport operations the attribute server needs.
type Link interface {
	softdevice.Conn

	// Writes yields incoming attribute writes until disconnect.
	Writes() <-chan Write

	// Notify pushes a value update for the given handle to the peer.
	Notify(handle uint16, value []byte) error
}

// Server dispatches incoming writes against a Registry and a set of
// per-handle write handlers.
type Server struct {
	reg      *Registry
	handlers map[uint16]softdevice.WriteHandler
	log      softdevice.Logger
}

// NewServer returns a Server over the given registry.
func NewServer(reg *Registry) *Server {
	return &Server{
		reg:      reg,
		handlers: make(map[uint16]softdevice.WriteHandler),
		log:      softdevice.GetLogger().ChildLogger(map[string]interface{}{"pkg": "gatts"}),
	}
}

// Registry returns the attribute table this server serves.
func (s *Server) Registry() *Registry {
	return s.reg
}

// Handle registers w to observe writes to the given attribute handle.
// Handlers are registered once at startup, before Run is called.
func (s *Server) Handle(h uint16, w softdevice.WriteHandler) {
	s.handlers[h] = w
}

// Run serves the connection until it disconnects or ctx is cancelled.
// Each incoming write is applied to the registry and then dispatched
// synchronously to the handler registered for its handle, if any.
// A nil return means an orderly disconnect.
func (s *Server) Run(ctx context.Context, l Link) error {
	if connCCC(l) == nil {
		bindCCC(l)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.Disconnected():
			return nil
		case w, ok := <-l.Writes():
			if !ok {
				return nil
			}
			if err := s.handleWrite(l, w); err != nil {
				return errors.Wrap(err, "gatt server")
			}
		}
	}
}

func (s *Server) handleWrite(l Link, w Write) error {
	s.reg.mu.Lock()
	a := s.reg.find(w.Handle)
	s.reg.mu.Unlock()

	switch {
	case a == nil:
		s.log.Warnf("write to unknown handle 0x%04x ignored", w.Handle)
	case a.kind == kindCCCD:
		// An empty configuration write has no effect. Single-byte writes
		// are tolerated and treated as the low octet.
		switch {
		case len(w.Data) >= 2:
			connCCC(l).set(w.Handle, binary.LittleEndian.Uint16(w.Data))
		case len(w.Data) == 1:
			connCCC(l).set(w.Handle, uint16(w.Data[0]))
		}
	case a.kind == kindValue:
		if a.props&PropWrite == 0 {
			s.log.Warnf("write to read-only handle 0x%04x rejected", w.Handle)
			break
		}
		if err := s.reg.SetValue(w.Handle, w.Data); err != nil {
			return err
		}
	}

	if h, ok := s.handlers[w.Handle]; ok {
		h.OnWrite(w.Handle, w.Data)
	}
	return nil
}
