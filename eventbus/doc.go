// Package eventbus delivers asynchronous node state changes to zero or
// more co-resident front-end subscribers over a loopback WebSocket.
//
// Delivery is best-effort, not durable: broadcast only reaches currently
// connected subscribers, and a subscriber that isn't connected when an
// event fires must reconcile through the Local Control Plane on
// reconnect.
//
// Example:
//
//	bus := eventbus.New()
//	http.Handle("/events", bus.Handler())
//	bus.Broadcast(eventbus.Event{Event: eventbus.NewMessage, Data: payload})
package eventbus
