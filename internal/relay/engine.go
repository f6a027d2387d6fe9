// Package relay implements the relay protocol engine: it owns a single
// outbound connection to a relay peer, keeps a flagged indexed cache in
// lockstep on each side of that connection, and translates between the
// wire framing and a Consumer's block/transaction callbacks.
//
// The engine owns its own reconnect loop. Callers never see a dropped
// connection directly; ProvideTransaction and ProvideBlock are
// best-effort and never return an error, and an inbound protocol or
// transport failure simply ends the current connection's receive
// loop, after which Run reconnects on its own schedule.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/btcsuite/btclog"

	"github.com/attila-relay/relaybridge/internal/blockcodec"
	"github.com/attila-relay/relaybridge/internal/cache"
	"github.com/attila-relay/relaybridge/internal/consumer"
)

// Config configures an Engine.
type Config struct {
	// Addr is the host:port of the relay peer to dial.
	Addr string
	// Consumer receives reconstructed blocks and relayed transactions.
	Consumer consumer.Consumer
	// Logger receives connection lifecycle and error logging. Defaults
	// to a disabled logger if nil.
	Logger btclog.Logger
}

// Engine is a single relay connection's worth of state: the live
// socket, the send-side cache, and the consumer it feeds. One Engine
// manages exactly one logical connection to one peer, reconnecting in
// place when that connection fails.
type Engine struct {
	addr   string
	cons   consumer.Consumer
	logger btclog.Logger

	mu        sync.Mutex
	conn      net.Conn
	sendCache *cache.FlaggedSet
}

// New returns an Engine ready to Run. It does not connect.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = btclog.Disabled
	}
	return &Engine{
		addr:   cfg.Addr,
		cons:   cfg.Consumer,
		logger: logger,
	}
}

// Run dials the configured peer and services the connection until ctx
// is canceled, reconnecting after reconnectDelay whenever the current
// connection ends in error. It returns only when ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := e.connectOnce(ctx); err != nil {
			e.logger.Errorf("connection to %s ended: %v", e.addr, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// connectOnce dials the peer once, exchanges VERSION frames, and
// services inbound frames until the connection fails. It always
// returns with the connection closed and the engine's connection state
// cleared.
func (e *Engine) connectOnce(ctx context.Context) error {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", e.addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", ErrTransport, e.addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	// Canceling ctx closes conn, which unblocks the receive loop's reads.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	receiveCache := cache.New(CacheCapacity)

	e.mu.Lock()
	e.conn = conn
	e.sendCache = cache.New(CacheCapacity)
	writeErr := e.writeVersionLocked()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.conn == conn {
			e.conn = nil
			e.sendCache = nil
		}
		e.mu.Unlock()
		_ = conn.Close()
	}()

	if writeErr != nil {
		return writeErr
	}

	e.logger.Infof("connected to %s", e.addr)
	return e.receiveLoop(conn, receiveCache)
}

// writeVersionLocked sends the VERSION frame. Callers hold e.mu.
func (e *Engine) writeVersionLocked() error {
	frame := append(frameHeaderBytes(msgVersion, uint32(len(VersionTag))), VersionTag...)
	if _, err := e.conn.Write(frame); err != nil {
		return fmt.Errorf("%w: writing version frame: %v", ErrTransport, err)
	}
	return nil
}

// receiveLoop reads and dispatches frames until the connection fails
// or an inbound frame violates the protocol. receiveCache belongs
// exclusively to this goroutine.
func (e *Engine) receiveLoop(conn net.Conn, receiveCache *cache.FlaggedSet) error {
	for {
		hdr, err := readFrameHeader(conn)
		if err != nil {
			return err
		}
		if hdr.Magic != Magic {
			return fmt.Errorf("%w: bad magic %#x", ErrProtocol, hdr.Magic)
		}

		switch hdr.Type {
		case msgVersion:
			payload, err := readExact(conn, hdr.Length, MaxNonBlockFrameLength)
			if err != nil {
				return err
			}
			if !bytes.Equal(payload, VersionTag) {
				return fmt.Errorf("%w: version mismatch", ErrProtocol)
			}

		case msgMaxVersion:
			payload, err := readExact(conn, hdr.Length, MaxNonBlockFrameLength)
			if err != nil {
				return err
			}
			e.logger.Infof("peer reports max version: %q", payload)

		case msgTransaction:
			if err := e.handleTransaction(conn, hdr.Length, receiveCache); err != nil {
				return err
			}

		case msgBlock:
			if err := e.handleBlock(conn, hdr.Length, receiveCache); err != nil {
				return err
			}

		case msgEndBlock:
			return fmt.Errorf("%w: unexpected END_BLOCK outside a block", ErrProtocol)

		default:
			return fmt.Errorf("%w: unknown message type %d", ErrProtocol, hdr.Type)
		}
	}
}

// handleTransaction reads a TRANSACTION frame's payload, admits it
// into receiveCache, and delivers it to the consumer.
func (e *Engine) handleTransaction(conn net.Conn, length uint32, receiveCache *cache.FlaggedSet) error {
	oversize := length > MaxRelayTransactionBytes
	if oversize && (length > MaxRelayOversizeTransactionBytes || receiveCache.FlagCount() >= MaxExtraOversizeTransactions) {
		return fmt.Errorf("%w: oversize transaction rejected (%d bytes)", ErrProtocol, length)
	}

	payload, err := readExact(conn, length, MaxRelayOversizeTransactionBytes)
	if err != nil {
		return err
	}

	receiveCache.Add(payload, oversize)
	return e.callSafely("ProvideTransaction", func() error {
		return e.cons.ProvideTransaction(payload)
	})
}

// handleBlock reads a BLOCK frame's header and directives, reconstructs
// the full block, validates the trailing END_BLOCK, and delivers both
// the header and the reconstructed block to the consumer.
func (e *Engine) handleBlock(conn net.Conn, txCount uint32, receiveCache *cache.FlaggedSet) error {
	if txCount > blockcodec.MaxBlockTransactions {
		return fmt.Errorf("%w: tx_count %d exceeds limit", ErrProtocol, txCount)
	}

	var header [blockcodec.HeaderSize]byte
	headerBytes, err := readExact(conn, blockcodec.HeaderSize, blockcodec.HeaderSize)
	if err != nil {
		return err
	}
	copy(header[:], headerBytes)

	if err := e.callSafely("ProvideBlockHeader", func() error {
		return e.cons.ProvideBlockHeader(header[:])
	}); err != nil {
		return err
	}

	block, err := blockcodec.Reconstruct(header, int(txCount), conn, receiveCache)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	endHdr, err := readFrameHeader(conn)
	if err != nil {
		return err
	}
	if endHdr.Magic != Magic || endHdr.Type != msgEndBlock || endHdr.Length != 0 {
		return fmt.Errorf("%w: malformed END_BLOCK", ErrProtocol)
	}

	return e.callSafely("ProvideBlock", func() error {
		return e.cons.ProvideBlock(block)
	})
}

// ProvideTransaction relays tx to the connected peer if any, admitting
// it into the send cache on success. It never returns an error:
// failures are logged and, if they are connection failures, end the
// current connection so Run reconnects. Safe for concurrent use.
func (e *Engine) ProvideTransaction(tx []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return
	}
	if e.sendCache.Contains(tx) {
		return
	}

	oversize := len(tx) > MaxRelayTransactionBytes
	if oversize && (len(tx) > MaxRelayOversizeTransactionBytes || e.sendCache.FlagCount() >= MaxExtraOversizeTransactions) {
		return
	}

	frame := append(frameHeaderBytes(msgTransaction, uint32(len(tx))), tx...)
	if _, err := e.conn.Write(frame); err != nil {
		e.logger.Errorf("writing transaction: %v", err)
		e.failConnLocked()
		return
	}

	e.sendCache.Add(tx, oversize)
}

// ProvideBlock relays block to the connected peer if any, compressing
// it against the send cache first. It never returns an error, by the
// same policy as ProvideTransaction. Safe for concurrent use.
func (e *Engine) ProvideBlock(block []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return
	}

	compressed, err := blockcodec.Compress(block, e.sendCache)
	if err != nil {
		e.logger.Errorf("compressing block: %v", err)
		return
	}

	var out bytes.Buffer
	out.Write(frameHeaderBytes(msgBlock, uint32(compressed.TxCount)))
	out.Write(compressed.Header[:])
	out.Write(compressed.Directives)
	out.Write(frameHeaderBytes(msgEndBlock, 0))

	if _, err := e.conn.Write(out.Bytes()); err != nil {
		e.logger.Errorf("writing block: %v", err)
		e.failConnLocked()
	}
}

// failConnLocked ends the current connection so the receive loop
// unblocks with an error and Run performs the single reconnect.
// Callers hold e.mu.
func (e *Engine) failConnLocked() {
	if e.conn != nil {
		_ = e.conn.Close()
	}
}

// callSafely invokes fn, converting both a returned error and a panic
// into an ErrProtocol-wrapped error so a misbehaving consumer is
// handled exactly like any other protocol violation.
func (e *Engine) callSafely(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: consumer.%s panicked: %v", ErrProtocol, name, r)
		}
	}()
	if err = fn(); err != nil {
		return fmt.Errorf("%w: consumer.%s: %v", ErrProtocol, name, err)
	}
	return nil
}
