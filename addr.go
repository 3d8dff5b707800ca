package softdevice

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AddressType is the kind tag of a peer's link-layer address.
type AddressType uint8

const (
	Public AddressType = iota
	RandomStatic
	RandomPrivateResolvable
	RandomPrivateNonResolvable
	Anonymous
)

func (t AddressType) String() string {
	switch t {
	case Public:
		return "public"
	case RandomStatic:
		return "random static"
	case RandomPrivateResolvable:
		return "random private resolvable"
	case RandomPrivateNonResolvable:
		return "random private non-resolvable"
	case Anonymous:
		return "anonymous"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Identity reports whether addresses of this type name a stable device
// identity. Only public and random static addresses can be correlated
// against a stored bond by plain equality; resolvable private addresses
// need a resolution step, and the remaining kinds never correlate.
func (t AddressType) Identity() bool {
	return t == Public || t == RandomStatic
}

// Address is a peer's link-layer identity: an AddressType plus a 6-byte
// MAC stored little endian, as delivered by the controller.
type Address struct {
	Type AddressType
	MAC  [6]byte
}

// NewAddress parses a colon-separated MAC string such as
// "00:11:22:33:44:55" into an Address of the given type.
func NewAddress(typ AddressType, s string) (Address, error) {
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Address{}, errors.Wrap(err, "address decode")
	}
	if len(b) != 6 {
		return Address{}, errors.Errorf("address must be 6 bytes, got %d", len(b))
	}

	a := Address{Type: typ}
	for i, v := range b {
		a.MAC[5-i] = v
	}
	return a, nil
}

// MustAddress is like NewAddress but panics on a malformed string.
func MustAddress(typ AddressType, s string) Address {
	a, err := NewAddress(typ, s)
	if err != nil {
		panic(err)
	}
	return a
}

// ClassifyRandom determines the sub-kind of a random device address from
// the two most significant bits of the MAC: 00 non-resolvable private,
// 01 resolvable private, 11 static. The reserved 10 pattern defines no
// stable identity and is treated as non-resolvable.
func ClassifyRandom(mac [6]byte) AddressType {
	switch (mac[5] >> 6) & 0x03 {
	case 0x01:
		return RandomPrivateResolvable
	case 0x03:
		return RandomStatic
	default:
		return RandomPrivateNonResolvable
	}
}

func (a Address) String() string {
	var sb strings.Builder
	for i := 5; i >= 0; i-- {
		if sb.Len() > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02x", a.MAC[i])
	}
	return sb.String()
}

// Bytes returns the MAC in wire order (little endian).
func (a Address) Bytes() []byte {
	b := make([]byte, 6)
	copy(b, a.MAC[:])
	return b
}

// Equal reports whether b names the same link-layer identity as a.
// Meaningful only for types where Identity() holds.
func (a Address) Equal(b Address) bool {
	return a.Type == b.Type && a.MAC == b.MAC
}
