package encoding

import (
	"encoding/binary"
	"fmt"
)

// DecodeCompactSize reads a compact-size integer out of buf starting at
// pos, against an already-buffered canonical block so the block codec
// can walk transaction boundaries without an intermediate reader per
// transaction. It returns the decoded value and the position
// immediately following it.
func DecodeCompactSize(buf []byte, pos int) (uint64, int, error) {
	if pos >= len(buf) {
		return 0, pos, fmt.Errorf("compact size: truncated at offset %d", pos)
	}
	switch prefix := buf[pos]; {
	case prefix < 0xfd:
		return uint64(prefix), pos + 1, nil
	case prefix == 0xfd:
		if pos+3 > len(buf) {
			return 0, pos, fmt.Errorf("compact size: truncated 0xfd field at offset %d", pos)
		}
		return uint64(binary.LittleEndian.Uint16(buf[pos+1 : pos+3])), pos + 3, nil
	case prefix == 0xfe:
		if pos+5 > len(buf) {
			return 0, pos, fmt.Errorf("compact size: truncated 0xfe field at offset %d", pos)
		}
		return uint64(binary.LittleEndian.Uint32(buf[pos+1 : pos+5])), pos + 5, nil
	default:
		if pos+9 > len(buf) {
			return 0, pos, fmt.Errorf("compact size: truncated 0xff field at offset %d", pos)
		}
		return binary.LittleEndian.Uint64(buf[pos+1 : pos+9]), pos + 9, nil
	}
}
