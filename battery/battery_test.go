package battery

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
	"github.com/pawlowskialex/nrf-softdevice/gatts"
)

type fakeLink struct {
	ctx      context.Context
	done     chan struct{}
	writes   chan gatts.Write
	notifies []gatts.Write
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		ctx:    context.Background(),
		done:   make(chan struct{}),
		writes: make(chan gatts.Write),
	}
}

func (l *fakeLink) Context() context.Context       { return l.ctx }
func (l *fakeLink) SetContext(ctx context.Context) { l.ctx = ctx }
func (l *fakeLink) LocalAddr() softdevice.Address  { return softdevice.Address{} }
func (l *fakeLink) PeerAddr() softdevice.Address {
	return softdevice.MustAddress(softdevice.Public, "00:11:22:33:44:55")
}
func (l *fakeLink) Disconnected() <-chan struct{} { return l.done }
func (l *fakeLink) Writes() <-chan gatts.Write    { return l.writes }

func (l *fakeLink) Notify(handle uint16, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	l.notifies = append(l.notifies, gatts.Write{Handle: handle, Data: v})
	return nil
}

func testService(t *testing.T) (*gatts.Registry, *Service) {
	t.Helper()

	reg := gatts.NewRegistry(softdevice.DefaultConfig())
	s, err := New(reg)
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	return reg, s
}

func TestLevelRoundTrip(t *testing.T) {
	reg, s := testService(t)

	level, err := s.Level(reg)
	if err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if level != 0 {
		t.Fatalf("expected initial level 0, got %d", level)
	}

	if err := s.SetLevel(reg, 87); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	level, _ = s.Level(reg)
	if level != 87 {
		t.Fatalf("expected level 87, got %d", level)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	reg, _ := testService(t)

	if _, err := New(reg); errors.Cause(err) != gatts.ErrServiceExists {
		t.Fatalf("expected ErrServiceExists, got %v", err)
	}
}

func TestOnWriteObservesConfiguration(t *testing.T) {
	_, s := testService(t)

	if s.NotificationsEnabled() {
		t.Fatal("notifications enabled before any write")
	}

	s.OnWrite(s.CCCDHandle(), []byte{0x01})
	if !s.NotificationsEnabled() {
		t.Fatal("enable write not observed")
	}

	s.OnWrite(s.CCCDHandle(), []byte{0x00})
	if s.NotificationsEnabled() {
		t.Fatal("disable write not observed")
	}

	// An empty payload has no observable effect.
	s.OnWrite(s.CCCDHandle(), []byte{0x01})
	s.OnWrite(s.CCCDHandle(), nil)
	if !s.NotificationsEnabled() {
		t.Fatal("empty write changed observed state")
	}

	// Writes to other handles are not configuration changes.
	s.OnWrite(s.ValueHandle(), []byte{0x00})
	if !s.NotificationsEnabled() {
		t.Fatal("foreign write changed observed state")
	}
}

func TestNotifyPassesThrough(t *testing.T) {
	reg, s := testService(t)
	l := newFakeLink()

	if err := s.Notify(reg, l, 42); errors.Cause(err) != gatts.ErrNotSubscribed {
		t.Fatalf("expected ErrNotSubscribed, got %v", err)
	}

	blob := []byte{byte(s.CCCDHandle()), byte(s.CCCDHandle() >> 8), 0x01, 0x00}
	if err := reg.SetSysAttrs(l, blob); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	if err := s.Notify(reg, l, 42); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}
	if len(l.notifies) != 1 || l.notifies[0].Data[0] != 42 {
		t.Fatalf("unexpected notifications: %+v", l.notifies)
	}

	level, _ := s.Level(reg)
	if level != 42 {
		t.Fatalf("notify did not update the value: %d", level)
	}
}
