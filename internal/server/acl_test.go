package server

import "testing"

func TestEmptyACLDeniesAll(t *testing.T) {
	acl := NewACL(nil)
	if acl.Allowed("127.0.0.1:12345") {
		t.Fatal("empty ACL must deny every address")
	}
	if acl.Allowed("10.0.0.1:1") {
		t.Fatal("empty ACL must deny every address")
	}
}

func TestACLAllowsAddressInCIDR(t *testing.T) {
	acl := NewACL([]string{"10.0.0.0/8"})
	if !acl.Allowed("10.1.2.3:5555") {
		t.Fatal("10.1.2.3 should be covered by 10.0.0.0/8")
	}
	if acl.Allowed("192.168.1.1:5555") {
		t.Fatal("192.168.1.1 is not covered by 10.0.0.0/8")
	}
}

func TestACLDeniesUnparsableAddress(t *testing.T) {
	acl := NewACL([]string{"10.0.0.0/8"})
	if acl.Allowed("not-an-ip") {
		t.Fatal("an unparsable address must be denied")
	}
}

func TestACLExactHostMatch(t *testing.T) {
	acl := NewACL([]string{"127.0.0.1/32"})
	if !acl.Allowed("127.0.0.1:1") {
		t.Fatal("127.0.0.1/32 should allow 127.0.0.1")
	}
	if acl.Allowed("127.0.0.2:1") {
		t.Fatal("127.0.0.1/32 should not allow 127.0.0.2")
	}
}

func TestACLIgnoresInvalidCIDREntries(t *testing.T) {
	acl := NewACL([]string{"not-a-cidr", "10.0.0.0/8"})
	if !acl.Allowed("10.5.5.5:1") {
		t.Fatal("valid entries must still work alongside a bad one")
	}
}

func TestACLIPv6(t *testing.T) {
	acl := NewACL([]string{"::1/128"})
	if !acl.Allowed("[::1]:80") {
		t.Fatal("::1/128 should allow ::1")
	}
	if acl.Allowed("[::2]:80") {
		t.Fatal("::1/128 should not allow ::2")
	}
}
