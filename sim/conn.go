package sim

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
	"github.com/pawlowskialex/nrf-softdevice/gatts"
)

// Conn is a simulated link between the peripheral and one central.
type Conn struct {
	local softdevice.Address
	peer  softdevice.Address

	ctxMu sync.Mutex
	ctx   context.Context

	writes   chan gatts.Write
	notifies chan gatts.Write
	done     chan struct{}
	once     sync.Once
}

func newConn(local, peer softdevice.Address) *Conn {
	return &Conn{
		local:    local,
		peer:     peer,
		ctx:      context.Background(),
		writes:   make(chan gatts.Write),
		notifies: make(chan gatts.Write, 16),
		done:     make(chan struct{}),
	}
}

func (c *Conn) Context() context.Context {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	return c.ctx
}

func (c *Conn) SetContext(ctx context.Context) {
	c.ctxMu.Lock()
	defer c.ctxMu.Unlock()
	c.ctx = ctx
}

func (c *Conn) LocalAddr() softdevice.Address { return c.local }

func (c *Conn) PeerAddr() softdevice.Address { return c.peer }

func (c *Conn) Disconnected() <-chan struct{} { return c.done }

func (c *Conn) Writes() <-chan gatts.Write { return c.writes }

// Notify delivers a handle/value notification to the central.
func (c *Conn) Notify(handle uint16, value []byte) error {
	if c.closed() {
		return errors.New("notify on closed connection")
	}
	v := make([]byte, len(value))
	copy(v, value)
	select {
	case c.notifies <- gatts.Write{Handle: handle, Data: v}:
		return nil
	default:
		return errors.New("notification queue full")
	}
}

// write injects an attribute write from the central. It blocks until
// the attribute server picks the write up, or fails once the link is
// down.
func (c *Conn) write(w gatts.Write) error {
	select {
	case <-c.done:
		return errors.New("write on closed connection")
	case c.writes <- w:
		return nil
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
