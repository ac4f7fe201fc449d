//go:build darwin

package document

import (
	"os"
	"syscall"
	"time"
)

func platformTimes(info os.FileInfo, t *Times) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	t.Accessed = time.Unix(st.Atimespec.Unix())
	t.Created = time.Unix(st.Birthtimespec.Unix())
}
