package main

import (
	"net"
	"syscall"
)

// rawFD extracts the underlying file descriptor from a net.Conn via
// the syscall.Conn interface, needed to index internal/fd's
// process-wide table (spec.md 4.B "every socket is registered here
// exactly once").
func rawFD(nc net.Conn) (int, bool) {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return 0, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fdNum int
	if err := raw.Control(func(fd uintptr) { fdNum = int(fd) }); err != nil {
		return 0, false
	}
	return fdNum, true
}
