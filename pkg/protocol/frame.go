package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Fixed header layout (18 bytes) shared by every frame on the air.
// Numeric fields are little-endian.
//
//	0  ..1   NetworkID u16
//	2        Type      u8
//	3        ID        u8
//	4        HopCount  u8
//	5  ..10  Src       [6]byte
//	11 ..16  Dst       [6]byte
//	17       Len       u8 (0..=232)
//	18 ..    Payload   Len bytes
const (
	HeaderSize   = 18
	MaxPayload   = 232
	MaxFrameSize = HeaderSize + MaxPayload
)

// Frame types carried in the Type field. Value 2 is reserved and rejected
// at decode.
const (
	TypeUnconfirmed uint8 = 0
	TypeConfirmed   uint8 = 1
	TypeAck         uint8 = 3
)

var (
	ErrShortFrame  = errors.New("protocol: frame shorter than header")
	ErrTruncated   = errors.New("protocol: frame shorter than header length field")
	ErrBadType     = errors.New("protocol: unknown frame type")
	ErrBadLength   = errors.New("protocol: payload length out of range")
	ErrBadHopCount = errors.New("protocol: hop count must be at least 1")
)

// Address is a 6-byte link-layer identifier. Equality is bytewise.
type Address [6]byte

// Broadcast is the reserved all-ones address. The driver transmits
// broadcast frames without a per-peer delivery report.
var Broadcast = Address{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (a Address) IsBroadcast() bool { return a == Broadcast }

func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// ParseAddress parses the colon-separated hex form produced by String.
func ParseAddress(s string) (Address, error) {
	var a Address
	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&a[0], &a[1], &a[2], &a[3], &a[4], &a[5])
	if err != nil || n != 6 {
		return Address{}, fmt.Errorf("protocol: bad address %q", s)
	}
	return a, nil
}

// Frame is the on-wire unit: an 18-byte header plus up to 232 payload bytes.
type Frame struct {
	NetworkID uint16
	Type      uint8
	ID        uint8
	HopCount  uint8
	Src       Address
	Dst       Address
	Payload   []byte
}

func validType(t uint8) bool {
	return t == TypeUnconfirmed || t == TypeConfirmed || t == TypeAck
}

// MarshalBinary encodes the frame into a freshly allocated buffer of
// HeaderSize+len(Payload) bytes.
func (f *Frame) MarshalBinary() ([]byte, error) {
	if len(f.Payload) > MaxPayload {
		return nil, ErrBadLength
	}
	if !validType(f.Type) {
		return nil, ErrBadType
	}
	if f.HopCount == 0 {
		return nil, ErrBadHopCount
	}
	buf := make([]byte, HeaderSize+len(f.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], f.NetworkID)
	buf[2] = f.Type
	buf[3] = f.ID
	buf[4] = f.HopCount
	copy(buf[5:11], f.Src[:])
	copy(buf[11:17], f.Dst[:])
	buf[17] = uint8(len(f.Payload))
	copy(buf[HeaderSize:], f.Payload)
	return buf, nil
}

// UnmarshalBinary decodes and validates a received frame. The payload is
// copied out of buf so the caller may reuse its buffer.
func (f *Frame) UnmarshalBinary(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrShortFrame
	}
	ln := int(buf[17])
	if ln > MaxPayload {
		return ErrBadLength
	}
	if len(buf) < HeaderSize+ln {
		return ErrTruncated
	}
	if !validType(buf[2]) {
		return ErrBadType
	}
	if buf[4] == 0 {
		return ErrBadHopCount
	}
	f.NetworkID = binary.LittleEndian.Uint16(buf[0:2])
	f.Type = buf[2]
	f.ID = buf[3]
	f.HopCount = buf[4]
	copy(f.Src[:], buf[5:11])
	copy(f.Dst[:], buf[11:17])
	f.Payload = make([]byte, ln)
	copy(f.Payload, buf[HeaderSize:HeaderSize+ln])
	return nil
}
