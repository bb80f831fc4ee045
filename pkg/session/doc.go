// ABOUTME: Package session ties the Cook Mode components into host and viewer lifecycles
// ABOUTME: Each side has one Open and one idempotent Close
// Package session wires a Cook Mode session together.
//
// A Host owns the transport engine, the capture pipeline and the ghost
// broadcaster. A Viewer owns both channel subscriptions, the ghost receiver,
// the playback queue and the host clock estimate. Both take a pubsub.Bus so
// the same code runs over the in-process hub, a websocket relay or gossip:
//
//	host, _ := session.NewHost(session.HostConfig{Bus: bus})
//	if err := host.Open(ctx); err != nil {
//		return err
//	}
//	defer host.Close()
//
//	viewer, _ := session.NewViewer(session.ViewerConfig{
//		Bus:       bus,
//		SessionID: host.SessionID(),
//	})
package session
