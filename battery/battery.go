// Package battery exposes the standard battery service: a single
// readable, notifiable level byte.
package battery

import (
	"sync/atomic"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
	"github.com/pawlowskialex/nrf-softdevice/gatts"
)

var (
	// ServiceUUID is the Battery Service UUID (0x180F).
	ServiceUUID = softdevice.UUID16(0x180F)
	// LevelUUID is the Battery Level characteristic UUID (0x2A19).
	LevelUUID = softdevice.UUID16(0x2A19)
)

// Service is the registered battery service. It owns no bonding logic
// and no buffering; reads, writes and notifications go straight through
// to the attribute table.
type Service struct {
	value uint16
	cccd  uint16

	notifying atomic.Bool
	log       softdevice.Logger
}

// New declares the battery service and its level characteristic
// (read+notify, encrypted link required, no authentication) against reg.
// Registration failures are fatal at startup.
func New(reg *gatts.Registry) (*Service, error) {
	sb, err := reg.AddService(ServiceUUID)
	if err != nil {
		return nil, errors.Wrap(err, "battery service")
	}

	hh, err := sb.AddCharacteristic(LevelUUID, []byte{0}, gatts.PropRead|gatts.PropNotify, gatts.SecJustWorks)
	if err != nil {
		return nil, errors.Wrap(err, "battery level characteristic")
	}

	return &Service{
		value: hh.ValueHandle,
		cccd:  hh.CCCDHandle,
		log:   softdevice.GetLogger().ChildLogger(map[string]interface{}{"pkg": "battery"}),
	}, nil
}

// ValueHandle returns the level characteristic's value handle.
func (s *Service) ValueHandle() uint16 { return s.value }

// CCCDHandle returns the level characteristic's configuration handle.
func (s *Service) CCCDHandle() uint16 { return s.cccd }

// Level reads the current battery level.
func (s *Service) Level(reg *gatts.Registry) (byte, error) {
	buf := make([]byte, 1)
	n, err := reg.GetValue(s.value, buf)
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, errors.Errorf("battery level has unexpected length %d", n)
	}
	return buf[0], nil
}

// SetLevel updates the stored battery level without notifying.
func (s *Service) SetLevel(reg *gatts.Registry, level byte) error {
	return reg.SetValue(s.value, []byte{level})
}

// Notify pushes a battery level update to the connected peer.
func (s *Service) Notify(reg *gatts.Registry, l gatts.Link, level byte) error {
	return reg.NotifyValue(l, s.value, []byte{level})
}

// OnWrite observes writes dispatched by the GATT server. A non-empty
// write to the configuration handle reports whether the peer enabled
// notifications; the state is recorded for observability only and does
// not gate Notify.
func (s *Service) OnWrite(handle uint16, data []byte) {
	if handle == s.cccd && len(data) > 0 {
		enabled := data[0]&0x01 != 0
		s.notifying.Store(enabled)
		s.log.Infof("battery notifications: %v", enabled)
	}
}

// NotificationsEnabled reports the last notification state observed via
// OnWrite.
func (s *Service) NotificationsEnabled() bool {
	return s.notifying.Load()
}
