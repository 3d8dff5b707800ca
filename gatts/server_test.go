package gatts

import (
	"context"
	"testing"
	"time"
)

type recordingHandler struct {
	got chan Write
}

func (h *recordingHandler) OnWrite(handle uint16, data []byte) {
	d := make([]byte, len(data))
	copy(d, data)
	h.got <- Write{Handle: handle, Data: d}
}

func TestServerDispatchesWrites(t *testing.T) {
	reg, hh := testRegistry(t)
	srv := NewServer(reg)

	h := &recordingHandler{got: make(chan Write, 4)}
	srv.Handle(hh.CCCDHandle, h)

	l := newFakeLink()
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), l) }()

	l.writes <- Write{Handle: hh.CCCDHandle, Data: []byte{0x01, 0x00}}

	select {
	case w := <-h.got:
		if w.Handle != hh.CCCDHandle || w.Data[0] != 0x01 {
			t.Fatalf("unexpected dispatch: %+v", w)
		}
	case <-time.After(time.Second):
		t.Fatal("write was not dispatched")
	}

	// The CCCD write enabled notifications for this link.
	if err := reg.NotifyValue(l, hh.ValueHandle, []byte{0x55}); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	close(l.done)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected orderly shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not stop on disconnect")
	}
}

func TestServerEmptyCCCDWriteHasNoEffect(t *testing.T) {
	reg, hh := testRegistry(t)
	srv := NewServer(reg)

	h := &recordingHandler{got: make(chan Write, 4)}
	srv.Handle(hh.CCCDHandle, h)

	l := newFakeLink()
	go srv.Run(context.Background(), l)
	defer close(l.done)

	l.writes <- Write{Handle: hh.CCCDHandle, Data: nil}
	<-h.got // handler observes the write even though nothing changed

	if err := reg.NotifyValue(l, hh.ValueHandle, []byte{0x55}); err == nil {
		t.Fatal("empty configuration write enabled notifications")
	}
}

func TestServerStopsOnContextCancel(t *testing.T) {
	reg, _ := testRegistry(t)
	srv := NewServer(reg)

	l := newFakeLink()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, l) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not stop on cancel")
	}
}

func TestServerIgnoresUnknownHandle(t *testing.T) {
	reg, hh := testRegistry(t)
	srv := NewServer(reg)

	h := &recordingHandler{got: make(chan Write, 4)}
	srv.Handle(hh.CCCDHandle, h)

	l := newFakeLink()
	done := make(chan error, 1)
	go func() { done <- srv.Run(context.Background(), l) }()

	l.writes <- Write{Handle: 0x4242, Data: []byte{0xff}}

	// The server keeps serving afterwards.
	l.writes <- Write{Handle: hh.CCCDHandle, Data: []byte{0x01, 0x00}}
	<-h.got
	if err := reg.NotifyValue(l, hh.ValueHandle, []byte{1}); err != nil {
		t.Fatalf("expected nil error but got %s instead", err)
	}

	close(l.done)
	if err := <-done; err != nil {
		t.Fatalf("expected orderly shutdown, got %v", err)
	}
}
