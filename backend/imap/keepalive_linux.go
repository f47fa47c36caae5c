//go:build linux

package imap

import (
	"time"

	"golang.org/x/sys/unix"
)

func setKeepaliveProbes(fd uintptr, count int) error {
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, count)
}

func setKeepaliveInterval(fd uintptr, interval time.Duration) error {
	return unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL,
		int(interval.Seconds()))
}
