//go:build !linux

package imap

import "time"

func setKeepaliveProbes(uintptr, int) error { return nil }

func setKeepaliveInterval(uintptr, time.Duration) error { return nil }
