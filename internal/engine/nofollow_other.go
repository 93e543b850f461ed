//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package engine

const oNoFollow = 0
