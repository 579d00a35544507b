//go:build linux || darwin

package coros

import "golang.org/x/sys/unix"

// These thin syscall wrappers exist for tests that exercise Park/Unpark
// against real file descriptors (see mustSocketpair in scheduler_test.go);
// the scheduler core itself never calls them, since it only ever
// registers/unregisters fds with the poller, never closes or reconfigures
// them directly.

func closeFD(fd int) error { return unix.Close(fd) }

func setNonblock(fd int) error { return unix.SetNonblock(fd, true) }
