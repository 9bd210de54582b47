//go:build unix

package loop

import (
	"errors"
	"syscall"
)

var errNoExec = errors.New("exec not supported")

func execSelf(argv0 string, argv, envv []string) error {
	return syscall.Exec(argv0, argv, envv)
}
