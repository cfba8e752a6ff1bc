//go:build !linux

package store

import (
	"io/fs"
	"time"
)

// birthTime falls back to ModTime on platforms where this module doesn't
// special-case a syscall-level creation time.
func birthTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
