//go:build !unix

package loop

import "errors"

var errNoExec = errors.New("exec not supported")

func execSelf(string, []string, []string) error {
	return errNoExec
}
