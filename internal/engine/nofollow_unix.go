//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package engine

import "syscall"

const oNoFollow = syscall.O_NOFOLLOW
