// Package consumer defines the collaborator contract the relay protocol
// engine delivers reconstructed blocks and relayed transactions to. The
// actual peer-to-peer node client that would implement this interface
// in production lives outside this module; this package fixes the
// interface and supplies a trivial logging implementation useful for
// wiring and tests.
package consumer

import (
	"github.com/btcsuite/btclog"

	"github.com/attila-relay/relaybridge/internal/encoding"
)

// Consumer receives inbound data reconstructed or relayed by the engine.
// ProvideBlockHeader is called once per inbound block as soon as its
// 80-byte header is parsed, before reconstruction of the full block
// begins; ProvideBlock is called once per inbound block, after
// reconstruction and a validated END_BLOCK; ProvideTransaction is called
// once per inbound transaction, after cache admission.
//
// An error returned from any method is treated as a protocol error: the
// engine drops the connection and reconnects rather than continuing in
// a half-processed state.
type Consumer interface {
	ProvideBlockHeader(header []byte) error
	ProvideBlock(block []byte) error
	ProvideTransaction(tx []byte) error
}

// LoggingConsumer is the thinnest possible Consumer: it logs what it is
// given and never errors. It stands in for the out-of-scope
// peer-to-peer node client in example wiring (cmd/relaybridge) and in
// engine tests that don't care about downstream behavior.
type LoggingConsumer struct {
	Logger btclog.Logger
}

func (c *LoggingConsumer) log() btclog.Logger {
	if c.Logger == nil {
		return btclog.Disabled
	}
	return c.Logger
}

func (c *LoggingConsumer) ProvideBlockHeader(header []byte) error {
	c.log().Debugf("block header received: %x", encoding.Hash256(header))
	return nil
}

func (c *LoggingConsumer) ProvideBlock(block []byte) error {
	id := encoding.Hash256(block[:min(len(block), 80)])
	c.log().Infof("block received: %x (%d bytes)", id, len(block))
	return nil
}

func (c *LoggingConsumer) ProvideTransaction(tx []byte) error {
	c.log().Debugf("transaction received: %d bytes", len(tx))
	return nil
}
