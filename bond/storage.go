package bond

import (
	"encoding/binary"
	"encoding/hex"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	softdevice "github.com/pawlowskialex/nrf-softdevice"
)

// Record is the persisted bond state.
type Record struct {
	Key          *softdevice.EncryptionKey
	Identity     *softdevice.IdentityKey
	SysAttrsAddr *softdevice.Address
	SysAttrs     []byte
}

// Storage is the persistence capability the bonder calls whenever it
// mutates its cache. The in-memory cache stays authoritative; storage
// failures are logged by the caller and never break a live connection.
type Storage interface {
	Load() (Record, error)
	SaveKey(key softdevice.EncryptionKey, id *softdevice.IdentityKey) error
	SaveSysAttrs(addr softdevice.Address, blob []byte) error
}

// NopStorage keeps nothing. This is the reference behavior: all bond
// state is volatile and lost at process exit.
type NopStorage struct{}

func (NopStorage) Load() (Record, error) { return Record{}, nil }

func (NopStorage) SaveKey(softdevice.EncryptionKey, *softdevice.IdentityKey) error { return nil }

func (NopStorage) SaveSysAttrs(softdevice.Address, []byte) error { return nil }

type keyRecord struct {
	LongTermKey           string `json:"longTermKey"`
	LongTermKeyLength     uint8  `json:"longTermKeyLength"`
	EncryptionDiversifier string `json:"encryptionDiversifier"`
	RandomValue           string `json:"randomValue"`
	Authenticated         bool   `json:"authenticated"`
	SecureConnections     bool   `json:"secureConnections"`
}

type identityRecord struct {
	IdentityResolvingKey string `json:"identityResolvingKey"`
	Address              string `json:"address"`
	AddressType          uint8  `json:"addressType"`
}

type sysAttrsRecord struct {
	Address     string `json:"address"`
	AddressType uint8  `json:"addressType"`
	Blob        string `json:"blob"`
}

type bondFile struct {
	Key      *keyRecord      `json:"key,omitempty"`
	Identity *identityRecord `json:"identity,omitempty"`
	SysAttrs *sysAttrsRecord `json:"systemAttributes,omitempty"`
}

type fileStorage struct {
	filename string
	lock     sync.Mutex
}

// NewFileStorage returns a Storage persisting the single bond record to
// a JSON file at filename.
func NewFileStorage(filename string) Storage {
	return &fileStorage{filename: filename}
}

func (fs *fileStorage) Load() (Record, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	bf, err := fs.read()
	if err != nil {
		return Record{}, err
	}

	var rec Record
	if bf.Key != nil {
		key, err := decodeKey(bf.Key)
		if err != nil {
			return Record{}, err
		}
		rec.Key = key
	}
	if bf.Identity != nil {
		id, err := decodeIdentity(bf.Identity)
		if err != nil {
			return Record{}, err
		}
		rec.Identity = id
	}
	if bf.SysAttrs != nil {
		addr, err := softdevice.NewAddress(softdevice.AddressType(bf.SysAttrs.AddressType), bf.SysAttrs.Address)
		if err != nil {
			return Record{}, errors.Wrap(err, "invalid system attribute address in bond file")
		}
		blob, err := hex.DecodeString(bf.SysAttrs.Blob)
		if err != nil {
			return Record{}, errors.Wrap(err, "invalid system attribute blob in bond file")
		}
		rec.SysAttrsAddr = &addr
		rec.SysAttrs = blob
	}
	return rec, nil
}

func (fs *fileStorage) SaveKey(key softdevice.EncryptionKey, id *softdevice.IdentityKey) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	bf, err := fs.read()
	if err != nil {
		return err
	}

	bf.Key = encodeKey(key)
	bf.Identity = nil
	if id != nil {
		bf.Identity = &identityRecord{
			IdentityResolvingKey: hex.EncodeToString(id.IRK[:]),
			Address:              id.Addr.String(),
			AddressType:          uint8(id.Addr.Type),
		}
	}
	return fs.write(bf)
}

func (fs *fileStorage) SaveSysAttrs(addr softdevice.Address, blob []byte) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	bf, err := fs.read()
	if err != nil {
		return err
	}

	bf.SysAttrs = &sysAttrsRecord{
		Address:     addr.String(),
		AddressType: uint8(addr.Type),
		Blob:        hex.EncodeToString(blob),
	}
	return fs.write(bf)
}

func (fs *fileStorage) read() (*bondFile, error) {
	var bf bondFile

	data, err := os.ReadFile(fs.filename)
	if os.IsNotExist(err) {
		return &bf, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read bond file")
	}

	if len(data) > 0 {
		if err := jsoniter.Unmarshal(data, &bf); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal bond file")
		}
	}
	return &bf, nil
}

func (fs *fileStorage) write(bf *bondFile) error {
	out, err := jsoniter.Marshal(bf)
	if err != nil {
		return errors.Wrap(err, "failed to marshal bond file")
	}
	if err := os.WriteFile(fs.filename, out, 0644); err != nil {
		return errors.Wrap(err, "failed to update bond file")
	}
	return nil
}

func encodeKey(key softdevice.EncryptionKey) *keyRecord {
	eDiv := make([]byte, 2)
	binary.LittleEndian.PutUint16(eDiv, key.MasterID.EDiv)

	randVal := make([]byte, 8)
	binary.LittleEndian.PutUint64(randVal, key.MasterID.Rand)

	return &keyRecord{
		LongTermKey:           hex.EncodeToString(key.EncInfo.LTK[:]),
		LongTermKeyLength:     key.EncInfo.LTKLen,
		EncryptionDiversifier: hex.EncodeToString(eDiv),
		RandomValue:           hex.EncodeToString(randVal),
		Authenticated:         key.EncInfo.Auth,
		SecureConnections:     key.EncInfo.LESC,
	}
}

func decodeKey(kr *keyRecord) (*softdevice.EncryptionKey, error) {
	ltk, err := hex.DecodeString(kr.LongTermKey)
	if err != nil || len(ltk) != 16 {
		return nil, errors.New("invalid long term key in bond file")
	}
	eDiv, err := hex.DecodeString(kr.EncryptionDiversifier)
	if err != nil || len(eDiv) != 2 {
		return nil, errors.New("invalid ediv in bond file")
	}
	randVal, err := hex.DecodeString(kr.RandomValue)
	if err != nil || len(randVal) != 8 {
		return nil, errors.New("invalid random value in bond file")
	}

	key := &softdevice.EncryptionKey{
		MasterID: softdevice.MasterID{
			EDiv: binary.LittleEndian.Uint16(eDiv),
			Rand: binary.LittleEndian.Uint64(randVal),
		},
		EncInfo: softdevice.EncryptionInfo{
			LTKLen: kr.LongTermKeyLength,
			Auth:   kr.Authenticated,
			LESC:   kr.SecureConnections,
		},
	}
	copy(key.EncInfo.LTK[:], ltk)
	return key, nil
}

func decodeIdentity(ir *identityRecord) (*softdevice.IdentityKey, error) {
	irk, err := hex.DecodeString(ir.IdentityResolvingKey)
	if err != nil || len(irk) != 16 {
		return nil, errors.New("invalid identity resolving key in bond file")
	}
	addr, err := softdevice.NewAddress(softdevice.AddressType(ir.AddressType), ir.Address)
	if err != nil {
		return nil, errors.Wrap(err, "invalid identity address in bond file")
	}

	id := &softdevice.IdentityKey{Addr: addr}
	copy(id.IRK[:], irk)
	return id, nil
}
