// Package sim is an in-memory stand-in for the radio stack. It drives
// the bonding callback surface with the same ordering a real stack
// would: callbacks happen only between connection establishment and
// disconnect, one connection at a time.
package sim

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
	"github.com/pawlowskialex/nrf-softdevice/gatts"
	"github.com/pawlowskialex/nrf-softdevice/peripheral"
)

var (
	ErrNotAdvertising = errors.New("peripheral is not advertising")
	ErrBusy           = errors.New("peripheral already has a connection")
)

type advSession struct {
	handler softdevice.BondHandler
	accept  chan *Conn
}

// Radio implements peripheral.Radio over process-local channels.
type Radio struct {
	cfg   softdevice.Config
	reg   *gatts.Registry
	local softdevice.Address

	mu      sync.Mutex
	session *advSession
	active  *Conn

	log softdevice.Logger
}

// NewRadio returns a simulated radio serving reg under the local
// address.
func NewRadio(cfg softdevice.Config, reg *gatts.Registry, local softdevice.Address) *Radio {
	return &Radio{
		cfg:   cfg,
		reg:   reg,
		local: local,
		log:   softdevice.GetLogger().ChildLogger(map[string]interface{}{"pkg": "sim"}),
	}
}

// AdvertiseBondable broadcasts until a central connects or ctx is
// cancelled. Only one advertising session can be pending at a time.
func (r *Radio) AdvertiseBondable(ctx context.Context, p peripheral.Params, ad, sr []byte, h softdevice.BondHandler) (gatts.Link, error) {
	s := &advSession{handler: h, accept: make(chan *Conn, 1)}

	r.mu.Lock()
	if r.session != nil {
		r.mu.Unlock()
		return nil, errors.New("already advertising")
	}
	r.session = s
	r.mu.Unlock()

	r.log.Debugf("advertising %d+%d bytes", len(ad), len(sr))

	select {
	case <-ctx.Done():
		r.mu.Lock()
		if r.session == s {
			r.session = nil
		}
		r.mu.Unlock()
		return nil, ctx.Err()
	case c := <-s.accept:
		return c, nil
	}
}

// Advertising reports whether an advertising session is pending.
func (r *Radio) Advertising() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// connect completes the pending advertising session for a central. The
// caller finishes link setup and then delivers the connection on the
// returned accept channel.
func (r *Radio) connect(peer softdevice.Address) (*Conn, *advSession, error) {
	r.mu.Lock()
	if r.active != nil && !r.active.closed() {
		r.mu.Unlock()
		return nil, nil, ErrBusy
	}
	s := r.session
	if s == nil {
		r.mu.Unlock()
		return nil, nil, ErrNotAdvertising
	}
	r.session = nil

	c := newConn(r.local, peer)
	r.active = c
	r.mu.Unlock()

	return c, s, nil
}

func (r *Radio) disconnect(c *Conn) {
	r.mu.Lock()
	if r.active == c {
		r.active = nil
	}
	r.mu.Unlock()
}
