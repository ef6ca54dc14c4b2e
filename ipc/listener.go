package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// probeTimeout bounds how long Listen waits for a pre-existing socket to
// answer a dial probe before concluding it is stale, per §4.2.
const probeTimeout = 200 * time.Millisecond

// Listen binds socketPath with owner-only permissions and runs an
// accept loop, calling handleConn for every accepted connection and
// onAcceptError for any Accept error other than the listener closing.
// It blocks for the life of the process: the net.Listener is not exposed
// to the caller, and the loop returns nil only if Accept reports
// net.ErrClosed.
//
// If socketPath already exists, Listen first dial-probes it: a live
// daemon answers with a Connect handshake, in which case Listen fails
// fast (another instance owns this host) rather than silently stealing
// the socket. If the probe gets connection-refused or times out, the
// path is a stale leftover from a daemon that didn't exit cleanly, so
// Listen unlinks it and rebinds. This matches
// original_source/src/ipc.rs's reclaim-or-fail behavior, which the
// teacher repo has no analog for (it listens on a TCP port, where this
// hazard doesn't arise).
func Listen(socketPath string, handleConn func(*Conn), onAcceptError func(error)) error {
	if err := reclaimIfStale(socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("ipc: chmod %s: %w", socketPath, err)
	}

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if onAcceptError != nil {
				onAcceptError(err)
			}
			continue
		}
		go handleConn(NewConn(nc))
	}
}

func reclaimIfStale(socketPath string) error {
	if _, err := os.Stat(socketPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("ipc: stat %s: %w", socketPath, err)
	}

	if probeAlive(socketPath) {
		return fmt.Errorf("ipc: %s is already bound by a running daemon", socketPath)
	}

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ipc: remove stale socket %s: %w", socketPath, err)
	}
	return nil
}

// probeAlive dials socketPath and sends a Connect handshake, returning
// true only if a peer replies in kind within probeTimeout. Connection
// refused, timeout, or any other failure is treated as "stale".
func probeAlive(socketPath string) bool {
	nc, err := net.DialTimeout("unix", socketPath, probeTimeout)
	if err != nil {
		return false
	}
	defer nc.Close()

	conn := NewConn(nc)
	nc.SetDeadline(time.Now().Add(probeTimeout))
	if err := conn.WriteMessage(Connect()); err != nil {
		return false
	}
	reply, err := conn.ReadMessage()
	if err != nil {
		return false
	}
	return reply.Kind == KindConnect
}

// Dial connects to an existing daemon socket and performs the Connect
// handshake, per §4.1.
func Dial(socketPath string) (*Conn, error) {
	nc, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", socketPath, err)
	}
	conn := NewConn(nc)
	if err := conn.WriteMessage(Connect()); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ipc: handshake with %s: %w", socketPath, err)
	}
	if reply.Kind != KindConnect {
		conn.Close()
		return nil, fmt.Errorf("ipc: %s sent unexpected handshake reply %s", socketPath, reply.Kind)
	}
	return conn, nil
}
