package blockcodec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/attila-relay/relaybridge/internal/cache"
	"github.com/attila-relay/relaybridge/internal/encoding"
)

// buildTx constructs a minimal canonical legacy transaction: version,
// one input with the given script, one output with the given script,
// and a zero locktime. nonce lets callers make otherwise-identical
// transactions distinct via the sequence field.
func buildTx(t *testing.T, script []byte, nonce uint32) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)

	var v [4]byte
	binary.LittleEndian.PutUint32(v[:], 1)
	buf.Write(v[:])

	buf.Write([]byte{1}) // in_count
	buf.Write(make([]byte, 36)) // outpoint
	scriptLen, err := encoding.EncodeVarInt(uint64(len(script)))
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(scriptLen)
	buf.Write(script)
	var seq [4]byte
	binary.LittleEndian.PutUint32(seq[:], nonce)
	buf.Write(seq[:])

	buf.Write([]byte{1}) // out_count
	buf.Write(make([]byte, 8)) // value
	buf.Write(scriptLen)
	buf.Write(script)

	var lt [4]byte
	buf.Write(lt[:])

	return buf.Bytes()
}

func buildBlock(t *testing.T, txs [][]byte) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	buf.Write(make([]byte, HeaderSize))
	count, err := encoding.EncodeVarInt(uint64(len(txs)))
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(count)
	for _, tx := range txs {
		buf.Write(tx)
	}
	return buf.Bytes()
}

func roundTrip(t *testing.T, block []byte, sendCache, receiveCache *cache.FlaggedSet) []byte {
	t.Helper()
	compressed, err := Compress(block, sendCache)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := Reconstruct(compressed.Header, compressed.TxCount, bytes.NewReader(compressed.Directives), receiveCache)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	return got
}

func TestInlineOnlyRoundtripEmptyCaches(t *testing.T) {
	txs := [][]byte{buildTx(t, []byte("a"), 1), buildTx(t, []byte("b"), 2)}
	block := buildBlock(t, txs)

	send := cache.New(1000)
	receive := cache.New(1000)

	got := roundTrip(t, block, send, receive)
	if !bytes.Equal(got, block) {
		t.Fatalf("roundtrip mismatch:\n got  %x\n want %x", got, block)
	}
	if send.Len() != 0 || receive.Len() != 0 {
		t.Fatalf("caches should remain empty, got send=%d receive=%d", send.Len(), receive.Len())
	}
}

func TestPartiallyCachedRoundtripRemovesSharedSubset(t *testing.T) {
	tx0 := buildTx(t, []byte("a"), 1)
	tx1 := buildTx(t, []byte("b"), 2)
	tx2 := buildTx(t, []byte("c"), 3)
	block := buildBlock(t, [][]byte{tx0, tx1, tx2})

	send := cache.New(1000)
	receive := cache.New(1000)
	// tx0 and tx2 are known to both sides in advance; tx1 is not.
	send.Add(tx0, false)
	send.Add(tx2, false)
	receive.Add(tx0, false)
	receive.Add(tx2, false)

	got := roundTrip(t, block, send, receive)
	if !bytes.Equal(got, block) {
		t.Fatalf("roundtrip mismatch:\n got  %x\n want %x", got, block)
	}
	if send.Len() != 0 || receive.Len() != 0 {
		t.Fatalf("shared subset should be removed from both caches, got send=%d receive=%d", send.Len(), receive.Len())
	}
}

func TestAllCachedCompressedSize(t *testing.T) {
	tx0 := buildTx(t, []byte("a"), 1)
	tx1 := buildTx(t, []byte("b"), 2)
	block := buildBlock(t, [][]byte{tx0, tx1})

	send := cache.New(1000)
	send.Add(tx0, false)
	send.Add(tx1, false)

	compressed, err := Compress(block, send)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	countBytes, err := encoding.EncodeVarInt(uint64(compressed.TxCount))
	if err != nil {
		t.Fatal(err)
	}
	want := HeaderSize + len(countBytes) + 2*compressed.TxCount
	got := HeaderSize + len(countBytes) + len(compressed.Directives)
	if got != want {
		t.Fatalf("compressed payload size = %d, want %d", got, want)
	}
}

func TestCompressOversizeTransactionErrors(t *testing.T) {
	huge := make([]byte, MaxInlineTransactionBytes+1)
	tx := buildTx(t, huge, 1)
	block := buildBlock(t, [][]byte{tx})

	_, err := Compress(block, cache.New(1000))
	if err == nil {
		t.Fatal("expected an error for an oversize in-block transaction")
	}
}

func TestReconstructMissingCacheEntryErrors(t *testing.T) {
	directives := bytes.NewBuffer(nil)
	writeUint16(directives, 0) // index 0, but the receive cache is empty

	_, err := Reconstruct([HeaderSize]byte{}, 1, directives, cache.New(1000))
	if err != ErrMissingCacheEntry {
		t.Fatalf("got %v, want ErrMissingCacheEntry", err)
	}
}

func TestReconstructTooManyTransactionsErrors(t *testing.T) {
	_, err := Reconstruct([HeaderSize]byte{}, MaxBlockTransactions+1, bytes.NewReader(nil), cache.New(1000))
	if err != ErrTooManyTransactions {
		t.Fatalf("got %v, want ErrTooManyTransactions", err)
	}
}

func TestReconstructSingleCachedIndexDirective(t *testing.T) {
	// A single cached "hello" transaction consumed by index 0 from an
	// 80-zero-byte header block.
	receive := cache.New(1000)
	receive.Add([]byte("hello"), false)

	directives := bytes.NewBuffer(nil)
	writeUint16(directives, 0)

	got, err := Reconstruct([HeaderSize]byte{}, 1, directives, receive)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := append(make([]byte, HeaderSize), append([]byte{0x01}, []byte("hello")...)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
	if receive.Len() != 0 {
		t.Fatalf("receive cache should be empty after consumption, got %d entries", receive.Len())
	}
}

func TestReconstructInlineDirectiveBypassesCache(t *testing.T) {
	// An inline directive carries its own transaction bytes and never
	// touches the receive cache.
	receive := cache.New(1000)

	directives := bytes.NewBuffer(nil)
	writeUint16(directives, inlineIndex)
	writeUint24(directives, 5)
	directives.Write([]byte("world"))

	got, err := Reconstruct([HeaderSize]byte{}, 1, directives, receive)
	if err != nil {
		t.Fatalf("Reconstruct: %v", err)
	}
	want := append(make([]byte, HeaderSize), append([]byte{0x01}, []byte("world")...)...)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
	if receive.Len() != 0 {
		t.Fatalf("receive cache should be unaffected, got %d entries", receive.Len())
	}
}
