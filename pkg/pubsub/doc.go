// ABOUTME: Pub/sub transport package
// ABOUTME: Carries session messages over memory, relay WebSocket or libp2p gossip
// Package pubsub provides the topic bus Cook Mode sessions publish on.
//
// Three backends implement Bus: an in-process Memory hub, a WebSocket
// client for the relay server, and a libp2p GossipSub mesh.
//
// Example:
//
//	bus, err := pubsub.DialWebSocket(ctx, "ws://localhost:8930/ws", pubsub.WebSocketOptions{})
//	sub, err := bus.Subscribe(ctx, "dev:cook-session:abc:ghost")
//	for data := range sub.C {
//		// handle data
//	}
package pubsub
