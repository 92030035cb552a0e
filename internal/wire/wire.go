// Package wire encodes and decodes the four packed, little-endian
// replication messages exchanged over the transport peer. Layouts follow
// spec section 6 exactly: fixed 128-byte NUL-terminated type names, 16-byte
// guids, no padding.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vireo-net/replicator/internal/idgen"
)

// ErrPayloadTooLarge is returned by Serialize when a message's variable
// payload exceeds what the wire format's u16 data_size field can encode.
var ErrPayloadTooLarge = errors.New("wire: payload exceeds u16 wire limit")

// MessageID tags the four wire message kinds on the byte stream so a
// generic frame reader can dispatch before fully decoding.
type MessageID uint8

const (
	MessageObjectReplicate MessageID = iota + 1
	MessageObjectSpawn
	MessageObjectDespawn
	MessageObjectRole
)

const typeNameLen = 128

func putTypeName(buf []byte, name string) error {
	if len(name) >= typeNameLen {
		return fmt.Errorf("wire: type name %q exceeds %d bytes", name, typeNameLen-1)
	}
	clear(buf[:typeNameLen])
	copy(buf, name)
	return nil
}

func getTypeName(buf []byte) string {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n])
}

func putID(buf []byte, id idgen.ObjectID) { copy(buf, id[:]) }

func getID(buf []byte) idgen.ObjectID {
	var id idgen.ObjectID
	copy(id[:], buf)
	return id
}

// ObjectReplicate carries the periodic state broadcast, unreliable channel.
// Wire layout: id(1) owner_frame(4) object_id(16) parent_id(16)
// type_name(128) data_size(2) data(data_size).
type ObjectReplicate struct {
	OwnerFrame uint32
	ObjectID   idgen.ObjectID
	ParentID   idgen.ObjectID
	TypeName   string
	Data       []byte
}

const objectReplicateHeaderLen = 1 + 4 + 16 + 16 + typeNameLen + 2

// Serialize implements pkg/encoding.Serializable[ObjectReplicate].
func (m *ObjectReplicate) Serialize() ([]byte, error) {
	if len(m.Data) > 0xFFFF {
		return nil, fmt.Errorf("replicate payload %d bytes: %w", len(m.Data), ErrPayloadTooLarge)
	}
	buf := make([]byte, objectReplicateHeaderLen+len(m.Data))
	buf[0] = byte(MessageObjectReplicate)
	binary.LittleEndian.PutUint32(buf[1:5], m.OwnerFrame)
	putID(buf[5:21], m.ObjectID)
	putID(buf[21:37], m.ParentID)
	if err := putTypeName(buf[37:37+typeNameLen], m.TypeName); err != nil {
		return nil, err
	}
	sizeOff := 37 + typeNameLen
	binary.LittleEndian.PutUint16(buf[sizeOff:sizeOff+2], uint16(len(m.Data)))
	copy(buf[sizeOff+2:], m.Data)
	return buf, nil
}

func (m *ObjectReplicate) Deserialize(buf []byte) error {
	if len(buf) < objectReplicateHeaderLen {
		return fmt.Errorf("wire: ObjectReplicate short buffer (%d bytes)", len(buf))
	}
	if MessageID(buf[0]) != MessageObjectReplicate {
		return fmt.Errorf("wire: expected ObjectReplicate id, got %d", buf[0])
	}
	m.OwnerFrame = binary.LittleEndian.Uint32(buf[1:5])
	m.ObjectID = getID(buf[5:21])
	m.ParentID = getID(buf[21:37])
	m.TypeName = getTypeName(buf[37 : 37+typeNameLen])
	sizeOff := 37 + typeNameLen
	dataSize := int(binary.LittleEndian.Uint16(buf[sizeOff : sizeOff+2]))
	if len(buf) < sizeOff+2+dataSize {
		return fmt.Errorf("wire: ObjectReplicate truncated payload")
	}
	m.Data = append([]byte(nil), buf[sizeOff+2:sizeOff+2+dataSize]...)
	return nil
}

// ObjectSpawn announces a new (or reconciled) object, reliable-ordered.
type ObjectSpawn struct {
	ObjectID       idgen.ObjectID
	ParentID       idgen.ObjectID
	PrefabID       idgen.ObjectID
	PrefabObjectID idgen.ObjectID
	OwnerClientID  uint32
	TypeName       string
}

const objectSpawnLen = 1 + 16*4 + 4 + typeNameLen

func (m *ObjectSpawn) Serialize() ([]byte, error) {
	buf := make([]byte, objectSpawnLen)
	buf[0] = byte(MessageObjectSpawn)
	off := 1
	putID(buf[off:off+16], m.ObjectID)
	off += 16
	putID(buf[off:off+16], m.ParentID)
	off += 16
	putID(buf[off:off+16], m.PrefabID)
	off += 16
	putID(buf[off:off+16], m.PrefabObjectID)
	off += 16
	binary.LittleEndian.PutUint32(buf[off:off+4], m.OwnerClientID)
	off += 4
	if err := putTypeName(buf[off:off+typeNameLen], m.TypeName); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *ObjectSpawn) Deserialize(buf []byte) error {
	if len(buf) < objectSpawnLen {
		return fmt.Errorf("wire: ObjectSpawn short buffer (%d bytes)", len(buf))
	}
	if MessageID(buf[0]) != MessageObjectSpawn {
		return fmt.Errorf("wire: expected ObjectSpawn id, got %d", buf[0])
	}
	off := 1
	m.ObjectID = getID(buf[off : off+16])
	off += 16
	m.ParentID = getID(buf[off : off+16])
	off += 16
	m.PrefabID = getID(buf[off : off+16])
	off += 16
	m.PrefabObjectID = getID(buf[off : off+16])
	off += 16
	m.OwnerClientID = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	m.TypeName = getTypeName(buf[off : off+typeNameLen])
	return nil
}

// ObjectDespawn removes an object, reliable-ordered.
type ObjectDespawn struct {
	ObjectID idgen.ObjectID
}

const objectDespawnLen = 1 + 16

func (m *ObjectDespawn) Serialize() ([]byte, error) {
	buf := make([]byte, objectDespawnLen)
	buf[0] = byte(MessageObjectDespawn)
	putID(buf[1:17], m.ObjectID)
	return buf, nil
}

func (m *ObjectDespawn) Deserialize(buf []byte) error {
	if len(buf) < objectDespawnLen {
		return fmt.Errorf("wire: ObjectDespawn short buffer (%d bytes)", len(buf))
	}
	if MessageID(buf[0]) != MessageObjectDespawn {
		return fmt.Errorf("wire: expected ObjectDespawn id, got %d", buf[0])
	}
	m.ObjectID = getID(buf[1:17])
	return nil
}

// ObjectRole announces an ownership handoff, reliable-ordered.
type ObjectRole struct {
	ObjectID      idgen.ObjectID
	OwnerClientID uint32
}

const objectRoleLen = 1 + 16 + 4

func (m *ObjectRole) Serialize() ([]byte, error) {
	buf := make([]byte, objectRoleLen)
	buf[0] = byte(MessageObjectRole)
	putID(buf[1:17], m.ObjectID)
	binary.LittleEndian.PutUint32(buf[17:21], m.OwnerClientID)
	return buf, nil
}

func (m *ObjectRole) Deserialize(buf []byte) error {
	if len(buf) < objectRoleLen {
		return fmt.Errorf("wire: ObjectRole short buffer (%d bytes)", len(buf))
	}
	if MessageID(buf[0]) != MessageObjectRole {
		return fmt.Errorf("wire: expected ObjectRole id, got %d", buf[0])
	}
	m.ObjectID = getID(buf[1:17])
	m.OwnerClientID = binary.LittleEndian.Uint32(buf[17:21])
	return nil
}

// PeekMessageID reads the leading tag byte without consuming the buffer,
// letting a frame reader dispatch to the right Deserialize before copying.
func PeekMessageID(buf []byte) (MessageID, error) {
	if len(buf) < 1 {
		return 0, fmt.Errorf("wire: empty buffer")
	}
	return MessageID(buf[0]), nil
}
