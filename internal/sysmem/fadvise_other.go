//go:build !linux

package sysmem

import "os"

// AdviseSequential is a no-op where posix_fadvise is unavailable.
func AdviseSequential(*os.File) {}
