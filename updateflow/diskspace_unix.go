//go:build !windows

package updateflow

import (
	"os"

	"golang.org/x/sys/unix"
)

// availableDiskSpaceBytes returns the free disk space on the volume holding
// the user's home directory, which is where updates are staged.
func availableDiskSpaceBytes() (int64, error) {
	path, err := os.UserHomeDir()
	if err != nil {
		path = os.TempDir()
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
