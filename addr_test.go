package softdevice

import (
	"testing"
)

func TestNewAddress(t *testing.T) {
	a, err := NewAddress(Public, "00:11:22:33:44:55")
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	if a.String() != "00:11:22:33:44:55" {
		t.Fatalf("address round trip mismatch: %s", a.String())
	}

	// wire order is little endian
	if a.MAC[0] != 0x55 || a.MAC[5] != 0x00 {
		t.Fatalf("unexpected byte order: %v", a.MAC)
	}

	if _, err := NewAddress(Public, "00:11:22:33:44"); err == nil {
		t.Fatal("expected error for short address")
	}
	if _, err := NewAddress(Public, "zz:11:22:33:44:55"); err == nil {
		t.Fatal("expected error for non-hex address")
	}
}

func TestAddressEqual(t *testing.T) {
	a := MustAddress(Public, "00:11:22:33:44:55")
	b := MustAddress(Public, "00:11:22:33:44:55")
	c := MustAddress(RandomStatic, "00:11:22:33:44:55")
	d := MustAddress(Public, "00:11:22:33:44:56")

	if !a.Equal(b) {
		t.Fatal("identical addresses not equal")
	}
	if a.Equal(c) {
		t.Fatal("addresses of different types compared equal")
	}
	if a.Equal(d) {
		t.Fatal("different addresses compared equal")
	}
}

func TestClassifyRandom(t *testing.T) {
	cases := []struct {
		msb  byte
		want AddressType
	}{
		{0x3f, RandomPrivateNonResolvable}, // 00
		{0x7f, RandomPrivateResolvable},    // 01
		{0xbf, RandomPrivateNonResolvable}, // 10 reserved
		{0xff, RandomStatic},               // 11
	}

	for _, c := range cases {
		mac := [6]byte{0x01, 0x02, 0x03, 0x04, 0x05, c.msb}
		if got := ClassifyRandom(mac); got != c.want {
			t.Fatalf("msb 0x%02x: got %s, want %s", c.msb, got, c.want)
		}
	}
}

func TestAddressTypeIdentity(t *testing.T) {
	identity := map[AddressType]bool{
		Public:                     true,
		RandomStatic:               true,
		RandomPrivateResolvable:    false,
		RandomPrivateNonResolvable: false,
		Anonymous:                  false,
	}

	for typ, want := range identity {
		if typ.Identity() != want {
			t.Fatalf("%s: Identity() = %v, want %v", typ, typ.Identity(), want)
		}
	}
}

func TestUUID16(t *testing.T) {
	u := UUID16(0x180F)
	if u.Len() != 2 {
		t.Fatalf("expected 2 byte UUID, got %d", u.Len())
	}
	if u.String() != "180f" {
		t.Fatalf("unexpected UUID string %q", u.String())
	}

	p, err := ParseUUID("180f")
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if !u.Equal(p) {
		t.Fatal("UUID16 and parsed UUID are not equal")
	}

	if _, err := ParseUUID("180f00"); err == nil {
		t.Fatal("expected error for invalid UUID length")
	}
}
