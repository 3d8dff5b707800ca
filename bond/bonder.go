// Package bond caches the long-term key and per-peer attribute state of
// a single bonded peer, and answers the radio's bonding callbacks with
// it so a returning peer can skip the full pairing ceremony.
package bond

import (
	"sync"

	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// Bonder implements softdevice.BondHandler with one key slot and one
// system attribute slot. A device that accepts a single connection at a
// time needs no more: a new bond silently replaces the previous one.
type Bonder struct {
	mu sync.Mutex

	key    *softdevice.EncryptionKey
	peerID *softdevice.IdentityKey

	sysAddr  *softdevice.Address
	sysAttrs []byte

	capacity int
	src      softdevice.SysAttrsSource
	store    Storage
	log      softdevice.Logger
}

// BonderOption configures a Bonder.
type BonderOption func(*Bonder) error

// WithStorage sets the persistence capability. The default keeps
// everything in memory only.
func WithStorage(s Storage) BonderOption {
	return func(b *Bonder) error {
		if s == nil {
			return errors.New("nil storage")
		}
		b.store = s
		return nil
	}
}

// WithCapacity overrides the system attribute blob capacity.
func WithCapacity(n int) BonderOption {
	return func(b *Bonder) error {
		if n <= 0 {
			return errors.Errorf("invalid system attribute capacity %d", n)
		}
		b.capacity = n
		return nil
	}
}

// New returns a Bonder that captures attribute state from src. Cached
// material is loaded from storage if the storage has any.
func New(src softdevice.SysAttrsSource, opts ...BonderOption) (*Bonder, error) {
	if src == nil {
		return nil, errors.New("nil system attribute source")
	}

	b := &Bonder{
		capacity: softdevice.DefaultConfig().SysAttrCapacity,
		src:      src,
		store:    NopStorage{},
		log:      softdevice.GetLogger().ChildLogger(map[string]interface{}{"pkg": "bond"}),
	}
	for _, o := range opts {
		if err := o(b); err != nil {
			return nil, errors.Wrap(err, "bond")
		}
	}

	rec, err := b.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "bond storage load")
	}
	if len(rec.SysAttrs) > b.capacity {
		return nil, errors.Errorf("stored system attributes length %d exceeds capacity %d", len(rec.SysAttrs), b.capacity)
	}
	b.key = rec.Key
	b.peerID = rec.Identity
	b.sysAddr = rec.SysAttrsAddr
	b.sysAttrs = rec.SysAttrs

	return b, nil
}

// OnBonded records the key distributed by a completed pairing ceremony,
// replacing any previous bond wholesale. The old peer's identity key is
// dropped even when the new peer distributes none. Only the key's
// identifying fields are logged; the key bytes themselves never are.
func (b *Bonder) OnBonded(conn softdevice.Conn, key softdevice.EncryptionKey, peerID *softdevice.IdentityKey, peerKey *softdevice.EncryptionKey) {
	b.log.Debugf("storing bond for %s: ediv 0x%04x, rand 0x%016x, ltk_len %d, auth %v, lesc %v",
		conn.PeerAddr(), key.MasterID.EDiv, key.MasterID.Rand,
		key.EncInfo.LTKLen, key.EncInfo.Auth, key.EncInfo.LESC)

	b.mu.Lock()
	k := key
	b.key = &k
	b.peerID = nil
	if peerID != nil {
		id := *peerID
		b.peerID = &id
	}
	id := b.peerID
	b.mu.Unlock()

	if err := b.store.SaveKey(key, id); err != nil {
		b.log.Errorf("failed to persist bond: %v", err)
	}
}

// GetKey returns the cached key material iff master matches the stored
// bond's identifier exactly. A partial match is a miss.
func (b *Bonder) GetKey(conn softdevice.Conn, master softdevice.MasterID) (softdevice.EncryptionInfo, bool) {
	b.log.Debugf("bond lookup for %s: ediv 0x%04x, rand 0x%016x",
		conn.PeerAddr(), master.EDiv, master.Rand)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.key == nil || b.key.MasterID != master {
		return softdevice.EncryptionInfo{}, false
	}
	return b.key.EncInfo, true
}

// SaveSysAttrs captures the connection's current attribute state into
// the single slot, stamping it with the peer's address. The previous
// peer's record is discarded. When the peer connected under a resolvable
// private address that matches the bonded identity, the slot is stamped
// with the identity address so later resolutions find it.
func (b *Bonder) SaveSysAttrs(conn softdevice.Conn) {
	addr := conn.PeerAddr()
	b.log.Debugf("saving system attributes for %s", addr)

	buf := make([]byte, b.capacity)
	n, err := b.src.GetSysAttrs(conn, buf)
	if err != nil {
		b.log.Errorf("failed to read system attributes: %v", err)
		return
	}
	if n > b.capacity {
		// Capacity is a startup invariant, not a runtime condition.
		panic(errors.Errorf("system attributes length %d exceeds configured capacity %d", n, b.capacity))
	}

	b.mu.Lock()
	if addr.Type == softdevice.RandomPrivateResolvable && b.peerID != nil && ResolveRPA(b.peerID.IRK, addr) {
		addr = b.peerID.Addr
	}
	b.sysAddr = &addr
	b.sysAttrs = buf[:n]
	blob := b.sysAttrs
	b.mu.Unlock()

	if err := b.store.SaveSysAttrs(addr, blob); err != nil {
		b.log.Errorf("failed to persist system attributes: %v", err)
	}
}

// LoadSysAttrs supplies the cached attribute blob back to the stack,
// but only when the connecting peer provably is the peer the blob was
// captured for. Anything else gets the explicit "no cached attributes"
// reply; address kinds with no stable identity get no reply at all.
func (b *Bonder) LoadSysAttrs(reply softdevice.SysAttrsReply) {
	conn := reply.Connection()
	addr := conn.PeerAddr()
	b.log.Debugf("loading system attributes for %s", addr)

	b.mu.Lock()
	slotAddr := b.sysAddr
	blob := b.sysAttrs
	peerID := b.peerID
	b.mu.Unlock()

	supply := func(blob []byte) {
		if err := reply.SetSysAttrs(blob); err != nil {
			b.log.Errorf("failed to apply system attributes: %v", err)
		}
	}

	switch addr.Type {
	case softdevice.Public, softdevice.RandomStatic:
		if slotAddr != nil && slotAddr.Equal(addr) {
			supply(blob)
			return
		}
		supply(nil)

	case softdevice.RandomPrivateResolvable:
		// Resolution per Bluetooth Core 4.2 Vol 3 Part H 2.2.2 requires
		// the identity-resolving key from the bond.
		if peerID == nil {
			b.log.Warnf("cannot resolve private address %s without an identity key", addr)
			supply(nil)
			return
		}
		if ResolveRPA(peerID.IRK, addr) && slotAddr != nil && slotAddr.Equal(peerID.Addr) {
			supply(blob)
			return
		}
		supply(nil)

	case softdevice.RandomPrivateNonResolvable, softdevice.Anonymous:
		// No stable identity to resolve against.
		return
	}
}
