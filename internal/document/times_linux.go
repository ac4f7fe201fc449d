//go:build linux

package document

import (
	"os"
	"syscall"
	"time"
)

// Linux stat has no birth time; the change time stands in for it.
func platformTimes(info os.FileInfo, t *Times) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	t.Accessed = time.Unix(st.Atim.Unix())
	t.Created = time.Unix(st.Ctim.Unix())
}
