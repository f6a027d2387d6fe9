package relay

import (
	"encoding/binary"
	"fmt"
	"io"
)

// frameHeader is the fixed 12-byte header every relay message opens
// with: magic, message type, and a length that is re-purposed as a
// transaction count for BLOCK messages.
type frameHeader struct {
	Magic  uint32
	Type   uint32
	Length uint32
}

const frameHeaderSize = 12

func readFrameHeader(r io.Reader) (frameHeader, error) {
	var buf [frameHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return frameHeader{}, fmt.Errorf("%w: reading frame header: %v", ErrTransport, err)
	}
	return frameHeader{
		Magic:  binary.BigEndian.Uint32(buf[0:4]),
		Type:   binary.BigEndian.Uint32(buf[4:8]),
		Length: binary.BigEndian.Uint32(buf[8:12]),
	}, nil
}

func frameHeaderBytes(msgType, length uint32) []byte {
	var buf [frameHeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], msgType)
	binary.BigEndian.PutUint32(buf[8:12], length)
	return buf[:]
}

// readExact reads exactly n bytes from r, rejecting n beyond max up
// front so a hostile length field can't force an oversized allocation.
func readExact(r io.Reader, n, max uint32) ([]byte, error) {
	if n > max {
		return nil, fmt.Errorf("%w: length %d exceeds limit %d", ErrProtocol, n, max)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: reading %d byte payload: %v", ErrTransport, n, err)
	}
	return buf, nil
}
