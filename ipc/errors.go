package ipc

import "errors"

// ErrUnexpectedMessage is returned when a connection sends a Message
// Kind that is not valid in its current position in the protocol (e.g.
// a CliCommand variant before the initial Connect handshake), per the
// UnexpectedMessage entry in spec.md §7.
var ErrUnexpectedMessage = errors.New("ipc: unexpected message")
