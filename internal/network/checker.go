package network

import (
	"context"
	"net"
	"time"
)

// Checker is the concrete network detection library the spec keeps
// external to the core; TCPChecker is the stdlib-only default (no
// third-party connectivity-probe library exists in the pack this was
// grounded on — see DESIGN.md).
type Checker interface {
	Check(ctx context.Context) (bool, error)
}

// TCPChecker reports online by dialing a target address with a short
// timeout; any successful dial (even one immediately closed) counts as
// connectivity.
type TCPChecker struct {
	Address string
	Dialer  net.Dialer
}

func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{
		Address: address,
		Dialer:  net.Dialer{Timeout: 2 * time.Second},
	}
}

func (c *TCPChecker) Check(ctx context.Context) (bool, error) {
	conn, err := c.Dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return false, nil
	}
	_ = conn.Close()
	return true, nil
}
