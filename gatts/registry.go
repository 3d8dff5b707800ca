// Package gatts implements the server-side attribute table and the
// write dispatch loop a connected peer is served from.
package gatts

import (
	"context"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// Properties is the characteristic property bitmask.
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropNotify
	PropIndicate
)

// SecurityMode is the minimum link security an attribute requires.
type SecurityMode uint8

const (
	// SecOpen requires no encryption.
	SecOpen SecurityMode = iota
	// SecJustWorks requires an encrypted link, no authentication.
	SecJustWorks
	// SecMITM requires an encrypted link with MITM protection.
	SecMITM
)

var (
	ErrTableFull     = errors.New("attribute table exhausted")
	ErrServiceExists = errors.New("service already declared")
	ErrAttrNotFound  = errors.New("attribute not found")
	ErrNotSubscribed = errors.New("peer has not enabled notifications")
	ErrNotConnected  = errors.New("connection is closed")
)

// CCCD bit assignments.
const (
	cccNotify   = 0x0001
	cccIndicate = 0x0002
)

// Registration cost per attribute beyond its value, in table bytes.
const attrOverhead = 8

type attrKind uint8

const (
	kindService attrKind = iota
	kindValue
	kindCCCD
)

type attribute struct {
	handle uint16
	kind   attrKind
	uuid   softdevice.UUID
	value  []byte
	props  Properties
	secure SecurityMode
}

// CharacteristicHandles are the registered attribute-table locations of
// one characteristic. They are immutable once returned.
type CharacteristicHandles struct {
	ValueHandle uint16
	CCCDHandle  uint16
}

// Registry is the attribute table. Services and characteristics are
// declared once at startup; values and per-connection state change at
// runtime.
type Registry struct {
	mu    sync.Mutex
	cfg   softdevice.Config
	attrs []*attribute
	used  int
	next  uint16
}

// NewRegistry returns an empty attribute table sized by cfg.
func NewRegistry(cfg softdevice.Config) *Registry {
	return &Registry{
		cfg:  cfg,
		next: 1, // attribute handles start at 1
	}
}

// AddService declares a primary service. It fails if the same service
// UUID was already declared or the table is out of space.
func (r *Registry) AddService(u softdevice.UUID) (*ServiceBuilder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.attrs {
		if a.kind == kindService && a.uuid.Equal(u) {
			return nil, errors.Wrapf(ErrServiceExists, "service %s", u)
		}
	}

	if _, err := r.add(&attribute{kind: kindService, uuid: u}); err != nil {
		return nil, err
	}
	return &ServiceBuilder{r: r, uuid: u}, nil
}

// add appends an attribute, assigning the next handle. Caller holds mu.
func (r *Registry) add(a *attribute) (uint16, error) {
	cost := attrOverhead + len(a.value)
	if r.used+cost > r.cfg.AttrTableSize {
		return 0, errors.Wrapf(ErrTableFull, "%d of %d bytes used", r.used, r.cfg.AttrTableSize)
	}
	a.handle = r.next
	r.next++
	r.used += cost
	r.attrs = append(r.attrs, a)
	return a.handle, nil
}

func (r *Registry) find(h uint16) *attribute {
	for _, a := range r.attrs {
		if a.handle == h {
			return a
		}
	}
	return nil
}

// ServiceBuilder adds characteristics to a declared service.
type ServiceBuilder struct {
	r    *Registry
	uuid softdevice.UUID
}

// AddCharacteristic declares a characteristic with an initial value. A
// client characteristic configuration descriptor is allocated when the
// properties include notify or indicate.
func (sb *ServiceBuilder) AddCharacteristic(u softdevice.UUID, value []byte, props Properties, sec SecurityMode) (CharacteristicHandles, error) {
	sb.r.mu.Lock()
	defer sb.r.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)

	vh, err := sb.r.add(&attribute{kind: kindValue, uuid: u, value: v, props: props, secure: sec})
	if err != nil {
		return CharacteristicHandles{}, errors.Wrapf(err, "characteristic %s", u)
	}

	hh := CharacteristicHandles{ValueHandle: vh}
	if props&(PropNotify|PropIndicate) != 0 {
		ch, err := sb.r.add(&attribute{kind: kindCCCD, uuid: softdevice.UUID16(0x2902), props: PropRead | PropWrite, secure: sec})
		if err != nil {
			return CharacteristicHandles{}, errors.Wrapf(err, "cccd for %s", u)
		}
		hh.CCCDHandle = ch
	}
	return hh, nil
}

// GetValue copies the current value of the attribute into buf and
// returns the value's full length.
func (r *Registry) GetValue(h uint16, buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.find(h)
	if a == nil || a.kind != kindValue {
		return 0, errors.Wrapf(ErrAttrNotFound, "handle 0x%04x", h)
	}
	copy(buf, a.value)
	return len(a.value), nil
}

// SetValue replaces the value of the attribute.
func (r *Registry) SetValue(h uint16, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := r.find(h)
	if a == nil || a.kind != kindValue {
		return errors.Wrapf(ErrAttrNotFound, "handle 0x%04x", h)
	}
	a.value = make([]byte, len(value))
	copy(a.value, value)
	return nil
}

// NotifyValue sends a value update to the peer on l. It fails with
// ErrNotSubscribed unless the peer has written the notification bit of
// the characteristic's CCCD, and with ErrNotConnected after disconnect.
func (r *Registry) NotifyValue(l Link, h uint16, value []byte) error {
	r.mu.Lock()
	a := r.find(h)
	r.mu.Unlock()

	if a == nil || a.kind != kindValue {
		return errors.Wrapf(ErrAttrNotFound, "handle 0x%04x", h)
	}
	if a.props&PropNotify == 0 {
		return errors.Errorf("handle 0x%04x does not support notifications", h)
	}

	select {
	case <-l.Disconnected():
		return ErrNotConnected
	default:
	}

	ccc := connCCC(l)
	if ccc == nil || ccc.get(r.cccdFor(h))&cccNotify == 0 {
		return errors.Wrapf(ErrNotSubscribed, "handle 0x%04x", h)
	}

	if err := r.SetValue(h, value); err != nil {
		return err
	}
	return l.Notify(h, value)
}

// cccdFor returns the CCCD handle for a value handle, or 0.
func (r *Registry) cccdFor(h uint16) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.attrs {
		if a.handle == h && i+1 < len(r.attrs) && r.attrs[i+1].kind == kindCCCD {
			return r.attrs[i+1].handle
		}
	}
	return 0
}

// GetSysAttrs serializes the connection's server-side attribute state
// (the CCCD values) into buf as little-endian handle/value pairs sorted
// by handle, and returns the full encoded length.
func (r *Registry) GetSysAttrs(conn softdevice.Conn, buf []byte) (int, error) {
	ccc := connCCC(conn)
	if ccc == nil {
		return 0, nil
	}

	ccc.mu.Lock()
	hh := make([]uint16, 0, len(ccc.m))
	for h := range ccc.m {
		hh = append(hh, h)
	}
	sort.Slice(hh, func(i, j int) bool { return hh[i] < hh[j] })

	out := make([]byte, 0, 4*len(hh))
	for _, h := range hh {
		var rec [4]byte
		binary.LittleEndian.PutUint16(rec[0:], h)
		binary.LittleEndian.PutUint16(rec[2:], ccc.m[h])
		out = append(out, rec[:]...)
	}
	ccc.mu.Unlock()

	copy(buf, out)
	return len(out), nil
}

// SetSysAttrs restores previously captured attribute state onto the
// connection. A nil blob resets the state to defaults.
func (r *Registry) SetSysAttrs(conn softdevice.Conn, blob []byte) error {
	ccc := connCCC(conn)
	if ccc == nil {
		ccc = bindCCC(conn)
	}

	ccc.mu.Lock()
	defer ccc.mu.Unlock()
	ccc.m = make(map[uint16]uint16)

	if len(blob)%4 != 0 {
		return errors.Errorf("malformed system attribute blob, length %d", len(blob))
	}
	for i := 0; i < len(blob); i += 4 {
		h := binary.LittleEndian.Uint16(blob[i:])
		v := binary.LittleEndian.Uint16(blob[i+2:])
		r.mu.Lock()
		a := r.find(h)
		r.mu.Unlock()
		if a == nil || a.kind != kindCCCD {
			continue
		}
		ccc.m[h] = v
	}
	return nil
}

// cccState is the per-connection CCCD map, carried in the Conn context.
type cccState struct {
	mu sync.Mutex
	m  map[uint16]uint16
}

func (c *cccState) get(h uint16) uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[h]
}

func (c *cccState) set(h, v uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[h] = v
}

type cccKey struct{}

func connCCC(conn softdevice.Conn) *cccState {
	s, _ := conn.Context().Value(cccKey{}).(*cccState)
	return s
}

func bindCCC(conn softdevice.Conn) *cccState {
	s := &cccState{m: make(map[uint16]uint16)}
	conn.SetContext(context.WithValue(conn.Context(), cccKey{}, s))
	return s
}
