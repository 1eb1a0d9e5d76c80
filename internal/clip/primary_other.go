//go:build !linux && !freebsd && !openbsd && !netbsd && !dragonfly

package clip

import "fmt"

// PRIMARY only exists on X11 and Wayland hosts.
func newPrimary() (Backend, error) {
	return nil, fmt.Errorf("primary: %w", ErrUnsupported)
}
