// Package events fans session notices out to interested parties.
//
// The listener and the agent manager publish connect, disconnect and
// handshake events; the transfer writer publishes download results. The
// console prints them as notices between prompts and the session recorder
// persists them to the ledger.
//
//	bus := events.NewBus(logger)
//	ch, id := bus.Subscribe(ctx)
//	for ev := range ch { ... }
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
package events
