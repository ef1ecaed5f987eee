//go:build windows

package updateflow

import (
	"os"

	"golang.org/x/sys/windows"
)

// availableDiskSpaceBytes returns the free disk space on the volume holding
// the user's home directory, which is where updates are staged.
func availableDiskSpaceBytes() (int64, error) {
	path, err := os.UserHomeDir()
	if err != nil {
		path = os.TempDir()
	}

	var freeBytesAvailable uint64
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, nil, nil); err != nil {
		return 0, err
	}
	return int64(freeBytesAvailable), nil
}
