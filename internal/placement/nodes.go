package placement

import (
	"fmt"
	"net"
	"strings"
)

// NodeSource yields the ordered set of storage node addresses placement may choose from.
// The returned slice must not be modified by callers.
type NodeSource interface {
	Nodes() []string
}

// StaticNodes is a NodeSource fixed at startup.
type StaticNodes struct {
	addrs []string
}

// NewStaticNodes validates and de-duplicates the given addresses, preserving order.
// An empty list is allowed; placement against it fails with ErrNoNodes.
func NewStaticNodes(addrs []string) (*StaticNodes, error) {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if err := ValidateAddress(addr); err != nil {
			return nil, err
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return &StaticNodes{addrs: out}, nil
}

// Nodes returns the configured node addresses.
func (s *StaticNodes) Nodes() []string {
	return s.addrs
}

// ValidateAddress checks that addr is in host:port form.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("node address cannot be empty")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid node address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid node address %q: missing host", addr)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("invalid node address %q: %w", addr, err)
	}
	return nil
}
