package bond

import (
	"encoding/hex"
	"testing"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// Sample data from Bluetooth Core Specification Vol 3, Part H,
// Appendix D.7: ah(irk, 0x708194) = 0x0dfbaa.
func sampleIRK(t *testing.T) [16]byte {
	t.Helper()
	b, err := hex.DecodeString("ec0234a357c8ad05341010a60a397d9b")
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	var irk [16]byte
	copy(irk[:], b)
	return irk
}

func TestAhSampleData(t *testing.T) {
	h, err := ah(sampleIRK(t), [3]byte{0x70, 0x81, 0x94})
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if h != [3]byte{0x0d, 0xfb, 0xaa} {
		t.Fatalf("hash mismatch: %x", h)
	}
}

func TestResolveRPA(t *testing.T) {
	irk := sampleIRK(t)

	// prand 0x708194 (top bits 01), hash 0x0dfbaa
	rpa := softdevice.MustAddress(softdevice.RandomPrivateResolvable, "70:81:94:0d:fb:aa")
	if !ResolveRPA(irk, rpa) {
		t.Fatal("known resolvable address did not resolve")
	}

	// same prand, corrupted hash
	bad := softdevice.MustAddress(softdevice.RandomPrivateResolvable, "70:81:94:0d:fb:ab")
	if ResolveRPA(irk, bad) {
		t.Fatal("corrupted hash resolved")
	}

	// wrong IRK
	var other [16]byte
	other[0] = 0x01
	if ResolveRPA(other, rpa) {
		t.Fatal("address resolved under the wrong IRK")
	}

	// only resolvable private addresses are candidates
	pub := softdevice.MustAddress(softdevice.Public, "70:81:94:0d:fb:aa")
	if ResolveRPA(irk, pub) {
		t.Fatal("public address resolved")
	}
}

func TestLoadSysAttrsResolvable(t *testing.T) {
	src := &fakeSource{blob: []byte{0x01, 0x02}}
	b, err := New(src)
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	irk := sampleIRK(t)
	identity := softdevice.MustAddress(softdevice.Public, "00:11:22:33:44:55")
	rpa := softdevice.MustAddress(softdevice.RandomPrivateResolvable, "70:81:94:0d:fb:aa")

	// Without an identity key the bonder must refuse to guess.
	reply := &fakeReply{conn: newFakeConn(rpa)}
	b.LoadSysAttrs(reply)
	if !reply.called || reply.got != nil {
		t.Fatal("expected an explicit empty reply without an IRK")
	}

	// Bond with identity distribution, then capture under the RPA. The
	// slot is stamped with the identity address.
	conn := newFakeConn(rpa)
	b.OnBonded(conn, testKey(0x1234, 0x1122334455667788), &softdevice.IdentityKey{IRK: irk, Addr: identity}, nil)
	b.SaveSysAttrs(conn)

	reply = &fakeReply{conn: newFakeConn(rpa)}
	b.LoadSysAttrs(reply)
	if string(reply.got) != string([]byte{0x01, 0x02}) {
		t.Fatalf("resolvable peer did not restore its blob: %v", reply.got)
	}

	// A different RPA that does not resolve under the IRK gets nothing.
	foreign := softdevice.MustAddress(softdevice.RandomPrivateResolvable, "70:81:94:0d:fb:ab")
	reply = &fakeReply{conn: newFakeConn(foreign)}
	b.LoadSysAttrs(reply)
	if reply.got != nil {
		t.Fatalf("unresolvable peer restored a blob: %v", reply.got)
	}
}

func TestSecondBondDropsIdentityKey(t *testing.T) {
	src := &fakeSource{blob: []byte{0x01, 0x02}}
	b, err := New(src)
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	irk := sampleIRK(t)
	identity := softdevice.MustAddress(softdevice.Public, "00:11:22:33:44:55")
	rpa := softdevice.MustAddress(softdevice.RandomPrivateResolvable, "70:81:94:0d:fb:aa")

	conn := newFakeConn(rpa)
	b.OnBonded(conn, testKey(0x1111, 0x0101010101010101), &softdevice.IdentityKey{IRK: irk, Addr: identity}, nil)
	b.SaveSysAttrs(conn)

	// Another peer bonds without distributing an identity key. The old
	// identity material goes with the old bond.
	other := newFakeConn(softdevice.MustAddress(softdevice.Public, "66:77:88:99:aa:bb"))
	b.OnBonded(other, testKey(0x2222, 0x0202020202020202), nil, nil)

	reply := &fakeReply{conn: newFakeConn(rpa)}
	b.LoadSysAttrs(reply)
	if !reply.called {
		t.Fatal("expected an explicit empty reply for the replaced peer")
	}
	if reply.got != nil {
		t.Fatalf("replaced peer restored attributes through a stale identity key: %v", reply.got)
	}
}
