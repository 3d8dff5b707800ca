package sim

import (
	"sync"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
	"github.com/pawlowskialex/nrf-softdevice/gatts"
)

// Central is a scripted remote peer. Tests and demos call its methods to
// play the central's half of a connection: connect, pair or re-encrypt,
// write attributes, collect notifications, disconnect.
type Central struct {
	radio *Radio
	addr  softdevice.Address

	mu      sync.Mutex
	conn    *Conn
	handler softdevice.BondHandler

	replied  bool
	restored []byte
}

// NewCentral returns a central that will connect under addr.
func NewCentral(radio *Radio, addr softdevice.Address) *Central {
	return &Central{radio: radio, addr: addr}
}

// Addr returns the address the central connects under.
func (c *Central) Addr() softdevice.Address { return c.addr }

// sysAttrsReply carries the bonder's restore answer back into the
// attribute table, recording it for inspection.
type sysAttrsReply struct {
	conn *Conn
	c    *Central
}

func (r *sysAttrsReply) Connection() softdevice.Conn { return r.conn }

func (r *sysAttrsReply) SetSysAttrs(b []byte) error {
	r.c.mu.Lock()
	r.c.replied = true
	r.c.restored = b
	r.c.mu.Unlock()
	return r.c.radio.reg.SetSysAttrs(r.conn, b)
}

// Connect completes the peripheral's pending advertising session. The
// stack restores per-peer server state at link-up, so the bonder's
// LoadSysAttrs runs before the connection is handed to the lifecycle.
func (c *Central) Connect() (*Conn, error) {
	conn, s, err := c.radio.connect(c.addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.handler = s.handler
	c.replied = false
	c.restored = nil
	c.mu.Unlock()

	s.handler.LoadSysAttrs(&sysAttrsReply{conn: conn, c: c})

	s.accept <- conn
	return conn, nil
}

// Pair performs a full pairing ceremony, distributing key material to
// the peripheral.
func (c *Central) Pair(key softdevice.EncryptionKey, id *softdevice.IdentityKey) error {
	conn, h, err := c.current()
	if err != nil {
		return err
	}
	h.OnBonded(conn, key, id, nil)
	return nil
}

// RequestEncryption asks the peripheral for the cached key matching
// master, the key-based reconnection path. A miss means the central
// must fall back to full pairing.
func (c *Central) RequestEncryption(master softdevice.MasterID) (softdevice.EncryptionInfo, bool, error) {
	conn, h, err := c.current()
	if err != nil {
		return softdevice.EncryptionInfo{}, false, err
	}
	info, ok := h.GetKey(conn, master)
	return info, ok, nil
}

// Write sends an attribute write. It returns once the attribute server
// has picked the write up.
func (c *Central) Write(handle uint16, data []byte) error {
	conn, _, err := c.current()
	if err != nil {
		return err
	}
	d := make([]byte, len(data))
	copy(d, data)
	return conn.write(gatts.Write{Handle: handle, Data: d})
}

// Notifications returns the stream of notifications received from the
// peripheral on the current connection.
func (c *Central) Notifications() (<-chan gatts.Write, error) {
	conn, _, err := c.current()
	if err != nil {
		return nil, err
	}
	return conn.notifies, nil
}

// Disconnect drops the link. The stack asks the bonder to capture
// system attributes first, still inside the connection window.
func (c *Central) Disconnect() error {
	conn, h, err := c.current()
	if err != nil {
		return err
	}

	h.SaveSysAttrs(conn)
	conn.close()
	c.radio.disconnect(conn)

	c.mu.Lock()
	c.conn = nil
	c.handler = nil
	c.mu.Unlock()
	return nil
}

// Restored returns the system attribute blob the peripheral supplied at
// link-up, or nil plus false if it explicitly supplied none.
func (c *Central) Restored() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restored == nil {
		return nil, false
	}
	return c.restored, true
}

// RestoreReplied reports whether the peripheral answered the restore
// request at all; an explicit "no cached attributes" reply counts.
func (c *Central) RestoreReplied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replied
}

func (c *Central) current() (*Conn, softdevice.BondHandler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.closed() {
		return nil, nil, errors.New("not connected")
	}
	return c.conn, c.handler, nil
}
