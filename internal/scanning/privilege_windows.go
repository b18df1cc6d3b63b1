//go:build windows

package scanning

// CanOpenRawSocket reports whether the process may open raw sockets.
// Raw TCP sockets are not usable for SYN probing on Windows.
func CanOpenRawSocket() bool {
	return false
}
