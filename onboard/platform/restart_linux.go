package platform

import (
	"golang.org/x/sys/unix"
)

// Restart flushes pending writes and reboots the device. It only returns
// on failure.
func Restart() error {
	unix.Sync()
	return unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART)
}
