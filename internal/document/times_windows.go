//go:build windows

package document

import (
	"os"
	"syscall"
	"time"
)

func platformTimes(info os.FileInfo, t *Times) {
	d, ok := info.Sys().(*syscall.Win32FileAttributeData)
	if !ok {
		return
	}
	t.Accessed = time.Unix(0, d.LastAccessTime.Nanoseconds())
	t.Created = time.Unix(0, d.CreationTime.Nanoseconds())
}
