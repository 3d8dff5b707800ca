package softdevice

// MasterID identifies which long-term key a peer is asking for, without
// revealing the key itself. Two records describe the same bond iff both
// the encrypted diversifier and the random value match exactly.
type MasterID struct {
	EDiv uint16
	Rand uint64
}

// EncryptionInfo is the long-term key material distributed during a
// pairing ceremony.
type EncryptionInfo struct {
	LTK    [16]byte
	LTKLen uint8
	Auth   bool
	LESC   bool
}

// EncryptionKey pairs key material with the master identifier used to
// look it up on reconnection.
type EncryptionKey struct {
	MasterID MasterID
	EncInfo  EncryptionInfo
}

// IdentityKey is a peer's identity-resolving key together with its
// identity address. The IRK is stored most significant byte first.
// Peers distribute it optionally at bonding time; without it, resolvable
// private addresses cannot be correlated to a bond.
type IdentityKey struct {
	IRK  [16]byte
	Addr Address
}

// SysAttrsReply hands cached system attributes back to the stack for the
// connection it was issued against. Passing nil reports explicitly that
// no cached attributes exist for this peer.
type SysAttrsReply interface {
	Connection() Conn
	SetSysAttrs(b []byte) error
}

// SysAttrsSource exposes the server-side attribute state the stack asks
// a bond handler to capture. It is implemented by the GATT registry.
type SysAttrsSource interface {
	GetSysAttrs(conn Conn, buf []byte) (int, error)
}

// BondHandler is the bonding callback surface invoked by the radio while
// it processes security events. All calls happen strictly between
// connection establishment and disconnect, and never concurrently for
// the same connection.
type BondHandler interface {
	// OnBonded reports a completed pairing ceremony. peerID and peerKey
	// are present only if the peer chose to distribute them.
	OnBonded(conn Conn, key EncryptionKey, peerID *IdentityKey, peerKey *EncryptionKey)

	// GetKey asks for the cached key matching master. A miss is an
	// ordinary negative result meaning "request full pairing".
	GetKey(conn Conn, master MasterID) (EncryptionInfo, bool)

	// SaveSysAttrs asks the handler to capture the connection's current
	// attribute state.
	SaveSysAttrs(conn Conn)

	// LoadSysAttrs asks the handler to supply previously captured
	// attribute state through reply.
	LoadSysAttrs(reply SysAttrsReply)
}

// WriteHandler receives attribute writes dispatched by the GATT server.
type WriteHandler interface {
	OnWrite(handle uint16, data []byte)
}
