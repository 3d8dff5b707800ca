// Package peripheral drives the advertise, connect, serve, disconnect
// cycle of a single-connection peripheral.
package peripheral

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
	"github.com/pawlowskialex/nrf-softdevice/gatts"
)

// Params are the advertising parameters handed to the radio.
type Params struct {
	IntervalMin time.Duration
	IntervalMax time.Duration
}

// DefaultParams returns the reference advertising parameters.
func DefaultParams() Params {
	return Params{
		IntervalMin: 100 * time.Millisecond,
		IntervalMax: 150 * time.Millisecond,
	}
}

// Radio is the link-layer collaborator. AdvertiseBondable broadcasts
// until a central connects, wiring h as the bonding callback surface for
// the pairing or key-based reconnection handshake it performs under the
// hood. It returns only connections that completed establishment.
type Radio interface {
	AdvertiseBondable(ctx context.Context, p Params, ad, sr []byte, h softdevice.BondHandler) (gatts.Link, error)
}

// State is the lifecycle state, observable for diagnostics.
type State int32

const (
	StateIdle State = iota
	StateAdvertising
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAdvertising:
		return "advertising"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Loop runs the connection lifecycle forever: advertise, serve the one
// connection until it drops, advertise again. There is no backoff and no
// retry cap; the device stays discoverable until ctx is cancelled.
type Loop struct {
	radio  Radio
	srv    *gatts.Server
	bonder softdevice.BondHandler
	params Params
	ad, sr []byte

	onConnect func(ctx context.Context, l gatts.Link)

	state  atomic.Int32
	cycles atomic.Uint64
	log    softdevice.Logger
}

// LoopOption configures a Loop.
type LoopOption func(*Loop) error

// WithOnConnect installs an application callback run in its own
// goroutine for each served connection. Its context is cancelled when
// the connection ends.
func WithOnConnect(fn func(ctx context.Context, l gatts.Link)) LoopOption {
	return func(l *Loop) error {
		if fn == nil {
			return errors.New("nil connect callback")
		}
		l.onConnect = fn
		return nil
	}
}

// NewLoop wires the lifecycle against its collaborators. ad and sr are
// the advertising data and scan response payloads.
func NewLoop(radio Radio, srv *gatts.Server, bonder softdevice.BondHandler, params Params, ad, sr []byte, opts ...LoopOption) (*Loop, error) {
	if radio == nil || srv == nil || bonder == nil {
		return nil, errors.New("peripheral: nil collaborator")
	}
	l := &Loop{
		radio:  radio,
		srv:    srv,
		bonder: bonder,
		params: params,
		ad:     ad,
		sr:     sr,
		log:    softdevice.GetLogger().ChildLogger(map[string]interface{}{"pkg": "peripheral"}),
	}
	for _, o := range opts {
		if err := o(l); err != nil {
			return nil, errors.Wrap(err, "peripheral")
		}
	}
	return l, nil
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Cycles returns how many connections have been served to completion.
func (l *Loop) Cycles() uint64 {
	return l.cycles.Load()
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Run drives the lifecycle until ctx is cancelled. Advertising and
// serving failures are transient: they are logged and the loop returns
// to advertising. Only cancellation ends the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.setState(StateAdvertising)

	for {
		conn, err := l.radio.AdvertiseBondable(ctx, l.params, l.ad, l.sr, l.bonder)
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateIdle)
				return ctx.Err()
			}
			l.log.Errorf("advertising failed: %v", err)
			continue
		}

		l.setState(StateConnected)
		l.log.Infof("connected to %s", conn.PeerAddr())

		connCtx, connCancel := context.WithCancel(ctx)
		if l.onConnect != nil {
			go l.onConnect(connCtx, conn)
		}

		if err := l.srv.Run(ctx, conn); err != nil && ctx.Err() == nil {
			l.log.Errorf("gatt server exited with error: %v", err)
		}
		connCancel()

		l.setState(StateDisconnected)
		l.cycles.Add(1)
		l.log.Infof("disconnected from %s", conn.PeerAddr())

		if ctx.Err() != nil {
			l.setState(StateIdle)
			return ctx.Err()
		}
		l.setState(StateAdvertising)
	}
}
