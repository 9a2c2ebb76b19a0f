// ABOUTME: Process image replacement stub for platforms without exec
// ABOUTME: The supervisor reports the spawn error instead

//go:build !unix

package restart

import "errors"

func execImage(string, []string, []string) error {
	return errors.ErrUnsupported
}
