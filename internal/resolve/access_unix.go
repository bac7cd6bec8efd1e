//go:build unix

package resolve

import "golang.org/x/sys/unix"

// checkAccess asks the kernel whether the real user may read and execute path.
func checkAccess(path string) error {
	return unix.Access(path, unix.R_OK|unix.X_OK)
}
