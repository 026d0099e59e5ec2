// Completion: 100% - Target name validation
package engine

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Target is the only platform code is generated for. The generated _start
// uses raw Linux syscalls.
const Target = "x86_64-linux"

var archAliases = []string{"x86_64", "amd64", "x86-64", "x64"}

// ParseTarget checks an "arch-os" or "arch/os" name and returns it in the
// canonical form
func ParseTarget(s string) (string, error) {
	name := strings.ToLower(strings.ReplaceAll(s, "/", "-"))
	arch, ok := lo.Find(archAliases, func(a string) bool { return strings.HasPrefix(name, a+"-") })
	if !ok || name[len(arch)+1:] != "linux" {
		return "", fmt.Errorf("unsupported target %q (supported: %s)", s, Target)
	}
	return Target, nil
}
