// Package ports finds free host ports for publishing service main ports.
//
// The scan is advisory only. A port reported free can be taken by anyone
// before the caller binds it, so callers that allocate for several services
// at once must serialize "scan" through "bind" themselves, and must
// reserve ports they handed out but that are not bound yet.
package ports

import (
	"errors"
	"fmt"
	"net"
)

// DefaultBase is where scanning for a service main port starts.
const DefaultBase = 30000

// MaxPort is the highest valid TCP port.
const MaxPort = 65535

// ErrNoFreePort is returned when the whole scanned range is in use.
var ErrNoFreePort = errors.New("no free port")

// Range is an inclusive span of ports.
type Range struct {
	Start int
	End   int
}

// From returns the range from base up to MaxPort.
func From(base int) Range {
	return Range{Start: base, End: MaxPort}
}

// Allocate returns the first port of r that is neither reserved nor
// reported by inUse. A nil inUse treats every port as unbound.
func Allocate(r Range, reserved []int, inUse func(int) bool) (int, error) {
	skip := make(map[int]bool, len(reserved))
	for _, p := range reserved {
		skip[p] = true
	}

	start := max(r.Start, 1)
	for port := start; port <= r.End; port++ {
		if skip[port] {
			continue
		}
		if inUse != nil && inUse(port) {
			continue
		}
		return port, nil
	}
	return 0, fmt.Errorf("scanning %d-%d: %w", start, r.End, ErrNoFreePort)
}

// Finder returns a free port at or above base.
type Finder func(base int) (int, error)

// FindFreePortFrom scans upward from base and returns the first port that
// can currently be bound on all interfaces.
func FindFreePortFrom(base int) (int, error) {
	return Allocate(From(base), nil, InUse)
}

// ReservingFinder is FindFreePortFrom that also skips the ports returned
// by reserved.
func ReservingFinder(reserved func() []int) Finder {
	return func(base int) (int, error) {
		return Allocate(From(base), reserved(), InUse)
	}
}

// InUse reports whether a TCP listener can not be opened on port.
func InUse(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return true
	}
	_ = l.Close()
	return false
}
