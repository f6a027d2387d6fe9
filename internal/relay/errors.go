package relay

import "errors"

// ErrProtocol marks a frame-level or payload-level invariant violation:
// bad magic, an over-limit length, an unexpected version echo, a
// missing cache index, a malformed END_BLOCK, or a consumer callback
// failure. Fatal to the current connection.
var ErrProtocol = errors.New("relay: protocol error")

// ErrTransport marks a socket read/write failure or an abrupt close.
// Fatal to the current connection.
var ErrTransport = errors.New("relay: transport error")
