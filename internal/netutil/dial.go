// Package netutil holds small network primitives shared by the dispatcher
// and probe engine, chiefly dialing out through a specific runway's bound
// source interface.
package netutil

import (
	"net"
	"time"
)

// DialFromSource opens a TCP connection to addr, binding the local side to
// sourceIP when one is given. An empty sourceIP dials with the system's
// default route, matching a runway with no specific interface bound.
func DialFromSource(addr, sourceIP string, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	if sourceIP != "" {
		if localAddr, err := net.ResolveTCPAddr("tcp", sourceIP+":0"); err == nil {
			dialer.LocalAddr = localAddr
		}
	}
	return dialer.Dial("tcp", addr)
}
