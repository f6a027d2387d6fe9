// Package blockcodec implements the compact-block wire representation:
// walking a canonical block's bytes to find transaction boundaries,
// substituting already-cached transactions with two-byte indices on
// send, and re-materializing a full block from indices and inline
// transactions on receive.
//
// It never interprets script contents or validates anything about a
// transaction beyond where it ends.
package blockcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/attila-relay/relaybridge/internal/cache"
	"github.com/attila-relay/relaybridge/internal/encoding"
)

// HeaderSize is the fixed size of a canonical block header.
const HeaderSize = 80

// MaxInlineTransactionBytes is the cap this engine enforces on an inline
// in-block transaction even though the wire's 3-byte big-endian length
// field could in principle carry up to 16,777,215.
const MaxInlineTransactionBytes = 1_000_000

// MaxBlockTransactions bounds how many transactions a single BLOCK
// message may claim to carry.
const MaxBlockTransactions = 10_000

// inlineIndex marks a directive as carrying its transaction inline
// rather than referencing a cache slot.
const inlineIndex = 0xFFFF

// ErrTransactionTooLarge is returned by Compress when a block
// transaction would need an inline length beyond MaxInlineTransactionBytes.
var ErrTransactionTooLarge = fmt.Errorf("blockcodec: in-block transaction exceeds %d bytes", MaxInlineTransactionBytes)

// ErrInlineTooLarge is returned by Reconstruct when a directive's inline
// length exceeds MaxInlineTransactionBytes.
var ErrInlineTooLarge = fmt.Errorf("blockcodec: inline transaction length exceeds %d bytes", MaxInlineTransactionBytes)

// ErrMissingCacheEntry is returned by Reconstruct when a directive
// references a cache index the receiver does not hold.
var ErrMissingCacheEntry = fmt.Errorf("blockcodec: directive references an absent cache entry")

// ErrTooManyTransactions is returned when a BLOCK message's tx_count
// exceeds MaxBlockTransactions.
var ErrTooManyTransactions = fmt.Errorf("blockcodec: tx_count exceeds %d", MaxBlockTransactions)

// Compressed is the result of compressing a canonical block against a
// send cache: the header and the concatenated per-transaction directive
// bytes that follow it inside a BLOCK frame's payload. TxCount is what
// the frame header's length field carries in place of a byte length.
type Compressed struct {
	Header     [HeaderSize]byte
	TxCount    int
	Directives []byte
}

// Compress walks a canonical block's bytes and produces its compressed
// form: every transaction already present in sendCache is replaced by
// its two-byte index and removed from sendCache; every other
// transaction is emitted inline, untouched in sendCache (outbound
// transactions only enter the send cache once actually transmitted via
// a TRANSACTION message, never implicitly here).
func Compress(block []byte, sendCache *cache.FlaggedSet) (*Compressed, error) {
	if len(block) < HeaderSize {
		return nil, fmt.Errorf("blockcodec: block shorter than header (%d bytes)", len(block))
	}
	var header [HeaderSize]byte
	copy(header[:], block[:HeaderSize])

	txCount, pos, err := encoding.DecodeCompactSize(block, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("blockcodec: reading tx_count: %w", err)
	}

	directives := bytes.NewBuffer(nil)
	for i := uint64(0); i < txCount; i++ {
		start := pos
		pos, err = transactionEnd(block, pos)
		if err != nil {
			return nil, fmt.Errorf("blockcodec: transaction %d: %w", i, err)
		}
		txBytes := block[start:pos]

		if idx, ok := sendCache.GetIndex(txBytes); ok {
			writeUint16(directives, uint16(idx))
			sendCache.Remove(txBytes)
			continue
		}

		if len(txBytes) > MaxInlineTransactionBytes {
			return nil, ErrTransactionTooLarge
		}
		writeUint16(directives, inlineIndex)
		writeUint24(directives, uint32(len(txBytes)))
		directives.Write(txBytes)
	}

	return &Compressed{Header: header, TxCount: int(txCount), Directives: directives.Bytes()}, nil
}

// Reconstruct reads txCount directives from r (as they arrive
// following a BLOCK frame's header) and rebuilds the canonical block
// they describe, consuming matched entries out of receiveCache as it
// goes. It does not read the trailing END_BLOCK frame; callers
// validate that separately.
func Reconstruct(header [HeaderSize]byte, txCount int, r io.Reader, receiveCache *cache.FlaggedSet) ([]byte, error) {
	if txCount < 0 || txCount > MaxBlockTransactions {
		return nil, ErrTooManyTransactions
	}

	out := bytes.NewBuffer(nil)
	out.Write(header[:])
	countBytes, err := encoding.EncodeVarInt(uint64(txCount))
	if err != nil {
		return nil, err
	}
	out.Write(countBytes)

	var idxBuf [2]byte
	for i := 0; i < txCount; i++ {
		if _, err := io.ReadFull(r, idxBuf[:]); err != nil {
			return nil, fmt.Errorf("blockcodec: reading directive %d index: %w", i, err)
		}
		index := binary.BigEndian.Uint16(idxBuf[:])

		if index == inlineIndex {
			var lenBuf [3]byte
			if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
				return nil, fmt.Errorf("blockcodec: reading directive %d inline length: %w", i, err)
			}
			length := uint32(lenBuf[0])<<16 | uint32(lenBuf[1])<<8 | uint32(lenBuf[2])
			if length > MaxInlineTransactionBytes {
				return nil, ErrInlineTooLarge
			}
			txBytes := make([]byte, length)
			if _, err := io.ReadFull(r, txBytes); err != nil {
				return nil, fmt.Errorf("blockcodec: reading directive %d inline body: %w", i, err)
			}
			out.Write(txBytes)
			continue
		}

		txBytes, ok := receiveCache.GetByIndex(int(index))
		if !ok {
			return nil, ErrMissingCacheEntry
		}
		out.Write(txBytes)
		receiveCache.Remove(txBytes)
	}

	return out.Bytes(), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint24(buf *bytes.Buffer, v uint32) {
	buf.WriteByte(byte(v >> 16))
	buf.WriteByte(byte(v >> 8))
	buf.WriteByte(byte(v))
}

// transactionEnd walks one canonical transaction starting at pos and
// returns the offset immediately following it: a 4-byte version,
// inputs (36-byte outpoint + a compact-size script + 4-byte sequence
// each), outputs (8-byte value + a compact-size script each), and a
// 4-byte locktime.
func transactionEnd(buf []byte, pos int) (int, error) {
	pos, err := advance(buf, pos, 4) // version
	if err != nil {
		return 0, err
	}

	inCount, pos, err := encoding.DecodeCompactSize(buf, pos)
	if err != nil {
		return 0, fmt.Errorf("reading input count: %w", err)
	}
	for i := uint64(0); i < inCount; i++ {
		if pos, err = advance(buf, pos, 36); err != nil { // outpoint
			return 0, fmt.Errorf("input %d outpoint: %w", i, err)
		}
		var scriptLen uint64
		scriptLen, pos, err = encoding.DecodeCompactSize(buf, pos)
		if err != nil {
			return 0, fmt.Errorf("input %d script length: %w", i, err)
		}
		if pos, err = advance(buf, pos, int(scriptLen)); err != nil {
			return 0, fmt.Errorf("input %d script: %w", i, err)
		}
		if pos, err = advance(buf, pos, 4); err != nil { // sequence
			return 0, fmt.Errorf("input %d sequence: %w", i, err)
		}
	}

	outCount, pos, err := encoding.DecodeCompactSize(buf, pos)
	if err != nil {
		return 0, fmt.Errorf("reading output count: %w", err)
	}
	for i := uint64(0); i < outCount; i++ {
		if pos, err = advance(buf, pos, 8); err != nil { // value
			return 0, fmt.Errorf("output %d value: %w", i, err)
		}
		var scriptLen uint64
		scriptLen, pos, err = encoding.DecodeCompactSize(buf, pos)
		if err != nil {
			return 0, fmt.Errorf("output %d script length: %w", i, err)
		}
		if pos, err = advance(buf, pos, int(scriptLen)); err != nil {
			return 0, fmt.Errorf("output %d script: %w", i, err)
		}
	}

	if pos, err = advance(buf, pos, 4); err != nil { // locktime
		return 0, err
	}
	return pos, nil
}

// advance checks that n more bytes exist at pos and returns pos+n.
func advance(buf []byte, pos, n int) (int, error) {
	if n < 0 || pos+n > len(buf) {
		return 0, fmt.Errorf("truncated at offset %d (need %d more bytes, have %d)", pos, n, len(buf)-pos)
	}
	return pos + n, nil
}
