// Package filter implements the allowed-prefix membership test used
// by a peer's writer half to decide whether a packet's destination is
// in scope for that peer. Modeled on net/tstun/wrap_test.go's use of
// net/netip.Prefix for address-list fixtures in the teacher repo.
package filter

import "net/netip"

// List is a small ordered list of IPv4 CIDR prefixes. An empty List
// allows nothing.
type List []netip.Prefix

// Allowed reports whether addr is contained by at least one prefix in
// l. It is a linear scan that returns as soon as a match is found;
// order does not affect the result, only how quickly a hit is found.
func Allowed(addr netip.Addr, l List) bool {
	if !addr.Is4() {
		return false
	}
	for _, p := range l {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Allowed reports whether addr matches this List.
func (l List) Allowed(addr netip.Addr) bool {
	return Allowed(addr, l)
}
