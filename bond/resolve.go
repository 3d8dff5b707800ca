package bond

import (
	"crypto/aes"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// ResolveRPA reports whether the resolvable private address a was
// generated from irk. A resolvable private address carries a 24-bit
// prand in its upper half and hash(irk, prand) in its lower half; the
// address resolves when the locally computed hash matches.
func ResolveRPA(irk [16]byte, a softdevice.Address) bool {
	if a.Type != softdevice.RandomPrivateResolvable {
		return false
	}

	// MAC is stored little endian: hash in bytes 0..2, prand in 3..5.
	prand := [3]byte{a.MAC[5], a.MAC[4], a.MAC[3]}
	h, err := ah(irk, prand)
	if err != nil {
		return false
	}
	return h[0] == a.MAC[2] && h[1] == a.MAC[1] && h[2] == a.MAC[0]
}

// ah is the random address hash function from Bluetooth Core 4.2
// Vol 3 Part H 2.2.2: the least significant 24 bits of e(irk, r') where
// r' is the 24-bit prand zero padded to 128 bits. Inputs and output are
// most significant byte first.
func ah(irk [16]byte, prand [3]byte) ([3]byte, error) {
	var out [3]byte

	c, err := aes.NewCipher(irk[:])
	if err != nil {
		return out, err
	}

	var block [16]byte
	copy(block[13:], prand[:])

	var ct [16]byte
	c.Encrypt(ct[:], block[:])

	copy(out[:], ct[13:])
	return out, nil
}
