package util

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// HostPort joins an address literal and a port. IPv6 literals are bracketed.
//
//	HostPort("1.2.3.4", 80) → "1.2.3.4:80"
//	HostPort("::1", 80)     → "[::1]:80"
func HostPort(addr string, port int) string {
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// FormatSeconds renders a latency the way the ranking menu shows it.
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// FormatMillis renders a latency in milliseconds with one decimal.
func FormatMillis(d time.Duration) string {
	return fmt.Sprintf("%.1f ms", float64(d)/float64(time.Millisecond))
}
