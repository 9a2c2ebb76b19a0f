// ABOUTME: Process image replacement on unix platforms
// ABOUTME: Wraps syscall.Exec for the supervisor fallback

//go:build unix

package restart

import "syscall"

func execImage(path string, argv, env []string) error {
	return syscall.Exec(path, argv, env)
}
