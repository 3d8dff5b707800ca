// Package adv crafts advertising data and scan response payloads.
// Refer to Supplement to Bluetooth Core Specification | CSSv6, Part A.
package adv

import (
	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// MaxEIRPacketLength is the maximum allowed AdvertisingData
// and ScanResponseData length.
const MaxEIRPacketLength = 31

// ErrNotFit means the field cannot fit into the packet.
var ErrNotFit = errors.New("field does not fit")

// AD record types used by this builder.
const (
	flags        = 0x01
	someUUID16   = 0x02
	allUUID16    = 0x03
	shortName    = 0x08
	completeName = 0x09
)

// Flag values for the flags record.
const (
	FlagLimitedDiscoverable = 0x01
	FlagGeneralDiscoverable = 0x02
	FlagLEOnly              = 0x04
)

// Packet accumulates advertising data records for an advertising packet
// or scan response.
type Packet struct {
	b []byte
}

// NewPacket returns a new advertising Packet with the given fields
// appended in order.
func NewPacket(fields ...Field) (*Packet, error) {
	p := &Packet{b: make([]byte, 0, MaxEIRPacketLength)}
	for _, f := range fields {
		if err := f(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Bytes returns the bytes of the packet.
func (p *Packet) Bytes() []byte {
	return p.b
}

// Len returns the length of the packet.
func (p *Packet) Len() int {
	return len(p.b)
}

// Field is an advertising field which can be appended to a packet.
type Field func(p *Packet) error

// Append appends a field to the packet. It returns ErrNotFit if the
// field doesn't fit into the packet, and leaves the packet intact.
func (p *Packet) Append(f Field) error {
	return f(p)
}

func (p *Packet) append(typ byte, b []byte) error {
	if p.Len()+1+1+len(b) > MaxEIRPacketLength {
		return ErrNotFit
	}
	p.b = append(p.b, byte(len(b)+1))
	p.b = append(p.b, typ)
	p.b = append(p.b, b...)
	return nil
}

// Flags is a flags record.
func Flags(f byte) Field {
	return func(p *Packet) error {
		return p.append(flags, []byte{f})
	}
}

// ShortName is a short local name.
func ShortName(n string) Field {
	return func(p *Packet) error {
		return p.append(shortName, []byte(n))
	}
}

// CompleteName is a complete local name.
func CompleteName(n string) Field {
	return func(p *Packet) error {
		return p.append(completeName, []byte(n))
	}
}

// AllUUID16 is a complete 16-bit service UUID list with a single entry.
func AllUUID16(u softdevice.UUID) Field {
	return func(p *Packet) error {
		if u.Len() != 2 {
			return errors.Errorf("16-bit UUID expected, got %d bytes", u.Len())
		}
		return p.append(allUUID16, u)
	}
}

// SomeUUID16 is an incomplete 16-bit service UUID list with a single entry.
func SomeUUID16(u softdevice.UUID) Field {
	return func(p *Packet) error {
		if u.Len() != 2 {
			return errors.Errorf("16-bit UUID expected, got %d bytes", u.Len())
		}
		return p.append(someUUID16, u)
	}
}
