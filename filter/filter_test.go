package filter

import (
	"net/netip"
	"testing"
)

func prefixes(ss ...string) List {
	var l List
	for _, s := range ss {
		l = append(l, netip.MustParsePrefix(s))
	}
	return l
}

func TestAllowedEmptyList(t *testing.T) {
	if Allowed(netip.MustParseAddr("10.0.0.1"), nil) {
		t.Error("empty list allowed an address")
	}
}

func TestAllowedFirstMatchWins(t *testing.T) {
	l := prefixes("10.0.0.0/24", "192.168.1.0/24")
	cases := []struct {
		addr string
		want bool
	}{
		{"10.0.0.5", true},
		{"10.0.0.255", true},
		{"10.0.1.1", false},
		{"192.168.1.1", true},
		{"192.168.2.1", false},
		{"8.8.8.8", false},
	}
	for _, c := range cases {
		got := Allowed(netip.MustParseAddr(c.addr), l)
		if got != c.want {
			t.Errorf("Allowed(%s) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestAllowedOrderIndependent(t *testing.T) {
	a := prefixes("10.0.0.0/24", "192.168.1.0/24")
	b := prefixes("192.168.1.0/24", "10.0.0.0/24")
	addr := netip.MustParseAddr("10.0.0.1")
	if Allowed(addr, a) != Allowed(addr, b) {
		t.Error("result depends on prefix order")
	}
}

func TestAllowedRejectsV6(t *testing.T) {
	l := prefixes("::/0")
	if Allowed(netip.MustParseAddr("::1"), l) {
		t.Error("filter must not accept IPv6 addresses")
	}
}

func TestAllowedMatchesEveryAddress(t *testing.T) {
	// Invariant 4 (spec.md §8): for all addresses A and prefix lists
	// L, Allowed(A, L) is true iff some prefix in L contains A.
	l := prefixes("10.0.0.0/8", "172.16.0.0/12")
	for _, s := range []string{"10.1.2.3", "172.16.0.1", "172.31.255.255", "172.32.0.1", "11.0.0.1"} {
		addr := netip.MustParseAddr(s)
		want := false
		for _, p := range l {
			if p.Contains(addr) {
				want = true
				break
			}
		}
		if got := Allowed(addr, l); got != want {
			t.Errorf("Allowed(%s) = %v, want %v", s, got, want)
		}
	}
}
