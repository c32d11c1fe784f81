// Package protocol owns the worker wire contract.
//
// Ownership boundary:
// - frame: length header and payload primitives
// - socket: Unix listener, per-connection receive and the client exchange
package protocol
