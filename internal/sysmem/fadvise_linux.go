//go:build linux

package sysmem

import (
	"os"

	"golang.org/x/sys/unix"
)

// AdviseSequential is a best-effort kernel hint: large sequential pass,
// please read ahead.
func AdviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_WILLNEED)
}
