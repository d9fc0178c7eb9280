// Package addr resolves the peer addresses that session.Session connects to.
//
// This is the "address resolution, DNS" collaborator spec.md lists as
// external to the RPC session core. It exists so session.Connect has
// something concrete to call without reaching into net.Resolver details
// itself — the core only ever sees the Address contract below.
package addr

import (
	"fmt"
	"net"
)

// Address is a resolved peer endpoint. It is intentionally opaque outside
// this package: session.Session only calls Valid, String, Network and
// TCPAddr on it.
type Address struct {
	network string
	host    string
	raw     string
	tcpAddr *net.TCPAddr
	err     error
}

// Resolve looks up hostport (e.g. "raft2.example.com:5254") over DNS and
// returns an Address. Resolution failures are captured on the Address
// rather than returned as a second value, matching the original
// ClientSession's "born-dead" handling of an invalid address: callers
// always get an Address back and check Valid() lazily, the same way
// session.Session defers errors to ErrorMessage().
func Resolve(hostport string) Address {
	tcpAddr, err := net.ResolveTCPAddr("tcp", hostport)
	return Address{
		network: "tcp",
		raw:     hostport,
		tcpAddr: tcpAddr,
		err:     err,
	}
}

// Valid reports whether resolution succeeded.
func (a Address) Valid() bool {
	return a.err == nil && a.tcpAddr != nil
}

// Err returns the resolution error, if any.
func (a Address) Err() error {
	return a.err
}

// Network returns the dial network, e.g. "tcp".
func (a Address) Network() string {
	return a.network
}

// TCPAddr returns the resolved address. Only valid to call when Valid()
// is true.
func (a Address) TCPAddr() *net.TCPAddr {
	return a.tcpAddr
}

// String renders the address the way log lines and error messages expect:
// the resolved IP and port (e.g. "10.0.0.2:5254") when Valid, or the
// original hostport followed by the resolution error in parentheses
// (e.g. "raft2.example.com:5254 (<resolution error>)") when not.
func (a Address) String() string {
	if a.Valid() {
		return a.tcpAddr.String()
	}
	if a.err != nil {
		return fmt.Sprintf("%s (%s)", a.raw, a.err)
	}
	return a.raw
}
