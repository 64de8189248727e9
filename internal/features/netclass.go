package features

import (
	"net"
	"net/netip"
	"sync"

	"github.com/yl2chen/cidranger"
)

// Private, loopback, link-local, CGNAT, multicast and reserved ranges.
// Feeds occasionally publish these by mistake; the model learns to discount them.
var nonPublicCIDRs = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.0.2.0/24",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
	"2001:db8::/32",
}

var (
	rangerOnce sync.Once
	ranger     cidranger.Ranger
)

// The ranger is built once and only read afterwards
func nonPublicRanger() cidranger.Ranger {
	rangerOnce.Do(func() {
		ranger = cidranger.NewPCTrieRanger()
		for _, c := range nonPublicCIDRs {
			_, ipNet, err := net.ParseCIDR(c)
			if err != nil {
				continue
			}
			_ = ranger.Insert(cidranger.NewBasicRangerEntry(*ipNet))
		}
	})
	return ranger
}

// IsNonPublic reports whether addr falls in a private or reserved range
func IsNonPublic(addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	ok, err := nonPublicRanger().Contains(net.IP(addr.Unmap().AsSlice()))
	return err == nil && ok
}
