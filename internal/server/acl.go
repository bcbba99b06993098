// Package server implements the TCP line protocol front end: the CIDR
// network allow-list, the bounded worker pool, the acceptor loop, and the
// wire command dispatcher.
package server

import (
	"net"
	"net/netip"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// ACL is a CIDR allow-list checked per accepted connection. An empty ACL
// denies every address — fail-closed, per the
// NetworkACLSecurityTest.EmptyACLDeniesAll requirement. The allow-list is
// stored as an immutable radix tree keyed on the address's bits rendered as
// one byte per bit ('0'/'1'), so CIDR longest-prefix matching falls out of
// the tree's native LongestPrefix walk instead of a linear CIDR scan.
type ACL struct {
	tree *iradix.Tree
}

// NewACL builds an allow-list from a set of CIDR strings (e.g. "10.0.0.0/8",
// "::1/128"). An invalid CIDR is skipped rather than rejecting the whole
// list, so one operator typo doesn't fail closed the entire allow-list; the
// caller is expected to validate configuration separately.
func NewACL(cidrs []string) *ACL {
	tree := iradix.New()
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		tree, _, _ = tree.Insert(bitKey(prefix.Addr(), prefix.Bits()), struct{}{})
	}
	return &ACL{tree: tree}
}

// Allowed reports whether addr is covered by some entry in the allow-list.
// An invalid or unparsable address is denied, as is every address when the
// allow-list is empty.
func (a *ACL) Allowed(addr string) bool {
	if a == nil || a.tree.Len() == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	_, _, ok := a.tree.Root().LongestPrefix(fullBitKey(ip))
	return ok
}

// bitKey renders the first bits of addr as one byte per bit, big-endian,
// for use as a radix-tree insertion key.
func bitKey(addr netip.Addr, bits int) []byte {
	raw := addr.As16()
	if addr.Is4() {
		raw4 := addr.As4()
		return bitsOf(raw4[:], bits)
	}
	return bitsOf(raw[:], bits)
}

// fullBitKey renders every bit of addr, for use as a LongestPrefix lookup
// key against entries stored by bitKey.
func fullBitKey(addr netip.Addr) []byte {
	if addr.Is4() {
		raw := addr.As4()
		return bitsOf(raw[:], len(raw)*8)
	}
	raw := addr.As16()
	return bitsOf(raw[:], len(raw)*8)
}

func bitsOf(raw []byte, bits int) []byte {
	if bits > len(raw)*8 {
		bits = len(raw) * 8
	}
	out := make([]byte, bits)
	for i := 0; i < bits; i++ {
		byteIdx := i / 8
		bitIdx := 7 - (i % 8)
		if raw[byteIdx]&(1<<uint(bitIdx)) != 0 {
			out[i] = '1'
		} else {
			out[i] = '0'
		}
	}
	return out
}
