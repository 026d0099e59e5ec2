//go:build !(linux && amd64)

package codegen

// Syscall numbers and flags of the linux/amd64 target
const (
	sysMmap        = 9
	sysExit        = 60
	protReadWrite  = 0x3
	mapPrivateAnon = 0x22
)
