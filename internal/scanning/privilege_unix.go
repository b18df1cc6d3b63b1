//go:build !windows

package scanning

import "os"

// CanOpenRawSocket reports whether the process may open raw sockets.
// Unix implementation: require euid == 0.
func CanOpenRawSocket() bool {
	return os.Geteuid() == 0
}
