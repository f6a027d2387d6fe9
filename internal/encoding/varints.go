package encoding

import (
	"encoding/binary"
	"fmt"
)

func EncodeVarInt(i uint64) ([]byte, error) {
	// encodes an int as a varint
	if i < 0xfd {
		return []byte{byte(i)}, nil
	} else if i < 0x10000 {
		result := make([]byte, 3)
		result[0] = byte(0xfd) // prefix
		binary.LittleEndian.PutUint16(result[1:], uint16(i))
		return result, nil
	} else if i < 0x100000000 {
		result := make([]byte, 5)
		result[0] = byte(0xfe) // prefix
		binary.LittleEndian.PutUint32(result[1:], uint32(i))
		return result, nil
	} else if i < 0x10000000000000000-1 {
		result := make([]byte, 9)
		result[0] = byte(0xff) // prefix
		binary.LittleEndian.PutUint64(result[1:], uint64(i))
		return result, nil
	}
	return nil, fmt.Errorf("varint encoding error - %d invalid input", i)
}
