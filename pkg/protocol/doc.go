// ABOUTME: Cook Mode wire protocol package
// ABOUTME: Defines session messages and channel naming
// Package protocol implements the Cook Mode wire protocol.
//
// Every message travels inside an envelope naming its kind:
//
//	{"type":"state","payload":{"playheadPosition":4,"isPlaying":true,"bpm":120,"timestamp":1000}}
//
// Example:
//
//	data, err := protocol.Encode(protocol.PadPress{PadID: "kick", Velocity: 100})
//	msg, err := protocol.Decode(data)
//	ghost, audio := protocol.SessionChannels("relay.example.com", sessionID)
package protocol
