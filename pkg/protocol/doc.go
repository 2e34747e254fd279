// Package protocol defines the JSON payloads casta pushes to viewers.
//
// Every server-originated text frame carries exactly one envelope:
//
//	{"payload": <value>}
//
// The first frame a viewer receives on a fresh connection is the identifying
// message, the session id formatted as a decimal string:
//
//	{"payload":"42"}
//
// Control traffic (ping/pong) is not enveloped; it travels as WebSocket
// control frames handled by the transport.
package protocol
