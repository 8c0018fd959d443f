package util

import (
	"math"
	"net"
)

func SafeConvertToUint32(float64Value float64) uint32 {
	if float64Value > math.MaxUint32 {
		return math.MaxUint32
	} else if float64Value < 0 {
		return 0
	} else {
		return uint32(float64Value)
	}
}

// ParseIP4s parses every string as an IPv4 address and skips the ones that
// are not.
func ParseIP4s(ipStrs []string) []net.IP {
	ips := make([]net.IP, 0, len(ipStrs))

	for _, ipStr := range ipStrs {
		ip := net.ParseIP(ipStr)
		if ip == nil {
			continue
		}

		ip4 := ip.To4()
		if ip4 == nil {
			continue
		}

		ips = append(ips, ip4)
	}
	return ips
}

// ContainsIP reports whether ip is one of ips.
func ContainsIP(ips []net.IP, ip net.IP) bool {
	for _, candidate := range ips {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}
