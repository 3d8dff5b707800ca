package softdevice

import (
	"github.com/pkg/errors"
)

// Config holds the device bootstrap parameters consumed once at startup.
// The values mirror what a stack enable call would take: GATT sizing,
// role counts, and the advertised device name.
type Config struct {
	DeviceName      string
	AttMTU          int
	AttrTableSize   int
	SysAttrCapacity int
	EventLength     int
	PeriphRoleCount int
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		DeviceName:      "HelloGo",
		AttMTU:          256,
		AttrTableSize:   32768,
		SysAttrCapacity: 62,
		EventLength:     24,
		PeriphRoleCount: 3,
	}
}

// An Option is a configuration function, which configures the device.
type Option func(*Config) error

// NewConfig applies opts over the defaults. Invalid settings are fatal
// at startup; nothing validates them again later.
func NewConfig(opts ...Option) (Config, error) {
	cfg := DefaultConfig()
	for _, o := range opts {
		if err := o(&cfg); err != nil {
			return Config{}, errors.Wrap(err, "config")
		}
	}
	return cfg, nil
}

// OptDeviceName sets the advertised device name.
func OptDeviceName(name string) Option {
	return func(cfg *Config) error {
		if name == "" {
			return errors.New("device name must not be empty")
		}
		cfg.DeviceName = name
		return nil
	}
}

// OptAttMTU overrides the ATT_MTU the server accepts.
func OptAttMTU(mtu int) Option {
	return func(cfg *Config) error {
		if mtu < 23 || mtu > 517 {
			return errors.Errorf("ATT_MTU %d out of range [23, 517]", mtu)
		}
		cfg.AttMTU = mtu
		return nil
	}
}

// OptAttrTableSize overrides the attribute table byte budget.
func OptAttrTableSize(size int) Option {
	return func(cfg *Config) error {
		if size <= 0 {
			return errors.New("attribute table size must be positive")
		}
		cfg.AttrTableSize = size
		return nil
	}
}

// OptSysAttrCapacity overrides the system attribute blob capacity.
func OptSysAttrCapacity(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return errors.New("system attribute capacity must be positive")
		}
		cfg.SysAttrCapacity = n
		return nil
	}
}

// OptEventLength overrides the connection event length.
func OptEventLength(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return errors.New("event length must be positive")
		}
		cfg.EventLength = n
		return nil
	}
}

// OptPeriphRoleCount overrides the number of peripheral role slots
// reserved in the stack configuration. Note the connection loop itself
// still serves one peer at a time.
func OptPeriphRoleCount(n int) Option {
	return func(cfg *Config) error {
		if n <= 0 {
			return errors.New("peripheral role count must be positive")
		}
		cfg.PeriphRoleCount = n
		return nil
	}
}
