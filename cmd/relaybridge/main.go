// Command relaybridge connects to a single relay peer and logs what it
// relays. The peer-to-peer node client a real bridge would forward
// blocks and transactions to lives outside this module, so this
// wiring stands in a LoggingConsumer instead.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/attila-relay/relaybridge/internal/consumer"
	"github.com/attila-relay/relaybridge/internal/relay"
	"github.com/attila-relay/relaybridge/internal/relaylog"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8336", "relay peer address")
	flag.Parse()

	logger := relaylog.New(os.Stderr)
	cons := &consumer.LoggingConsumer{Logger: logger}
	engine := relay.New(relay.Config{
		Addr:     *addr,
		Consumer: cons,
		Logger:   logger,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
