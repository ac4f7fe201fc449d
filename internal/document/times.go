package document

import (
	"os"
	"time"
)

// Times holds the timestamps recorded for a file.
type Times struct {
	Modified time.Time
	// Created is the birth time when the platform records one, otherwise the
	// inode change time, otherwise the modification time.
	Created  time.Time
	Accessed time.Time
}

// FileTimes extracts timestamps from info.
func FileTimes(info os.FileInfo) Times {
	if info == nil {
		return Times{}
	}
	t := Times{Modified: info.ModTime(), Created: info.ModTime(), Accessed: info.ModTime()}
	platformTimes(info, &t)
	return t
}
