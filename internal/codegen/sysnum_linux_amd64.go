//go:build linux && amd64

package codegen

import "golang.org/x/sys/unix"

// Syscall numbers and flags used by generated code, taken from the host
// headers when the compiler itself runs on linux/amd64
const (
	sysMmap        = unix.SYS_MMAP
	sysExit        = unix.SYS_EXIT
	protReadWrite  = unix.PROT_READ | unix.PROT_WRITE
	mapPrivateAnon = unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
)
