package fileutil

import (
	"os"
)

type plan9Lock struct {
	f *os.File
}

var _ Releaser = (*plan9Lock)(nil)

func (l *plan9Lock) Release() error {
	panic("unsupported unlock file")
}

func NewLock(f *os.File) (Releaser, error) {
	panic("unsupported lock file")
}
