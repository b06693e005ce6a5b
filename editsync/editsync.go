package editsync

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// the host assigns an `Id` to each view instance handle and to each
// runtime instance. buffer identity is the resource uri, not an `Id`

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func RequireIdFromBytes(idBytes []byte) Id {
	id, err := IdFromBytes(idBytes)
	if err != nil {
		panic(err)
	}
	return id
}

func ParseId(idStr string) (Id, error) {
	switch len(idStr) {
	case 36:
		idStr = idStr[0:8] + idStr[9:13] + idStr[14:18] + idStr[19:23] + idStr[24:]
	case 32:
		// dashes already stripped, assume valid
	default:
		return Id{}, fmt.Errorf("cannot parse id %v", idStr)
	}

	idBytes, err := hex.DecodeString(idStr)
	if err != nil {
		return Id{}, err
	}
	return IdFromBytes(idBytes)
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", self[0:4], self[4:6], self[6:8], self[8:10], self[10:16])
}

func (self Id) MarshalText() ([]byte, error) {
	return []byte(self.String()), nil
}

func (self *Id) UnmarshalText(text []byte) error {
	id, err := ParseId(string(text))
	if err != nil {
		return err
	}
	*self = id
	return nil
}

// BufferId is the stable uri-like identity of a text buffer.
type BufferId string

// ViewId identifies a view bound to a specific buffer. The same view
// handle bound to the same buffer always yields the same id across
// repeated snapshot recomputation. When a view is rebound to another
// buffer the old id disappears and a new id appears.
// comparable
type ViewId struct {
	Handle Id
	Buffer BufferId
}

func (self ViewId) String() string {
	return fmt.Sprintf("%s@%s", self.Handle, self.Buffer)
}

// use this type when counting bytes
type ByteCount = int64

func kib(c ByteCount) ByteCount {
	return c * ByteCount(1024)
}

func mib(c ByteCount) ByteCount {
	return c * ByteCount(1024*1024)
}
