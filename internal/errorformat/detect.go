package errorformat

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrToolNotDetected is returned by DetectTool when the checker command's
// first non-option argument does not match a known tool name and no
// explicit recipe was supplied.
var ErrToolNotDetected = errors.New("errorformat: tool not detected")

// DetectTool inspects the first non-option argument of a checker command
// and returns the matching registry key. It recognises bare tool names
// (e.g. "ruff") and "python -m <tool>"/"python3 -m <tool>" forms.
func DetectTool(command []string, registry Registry) (string, error) {
	name := firstToolArg(command)
	if name == "" {
		return "", fmt.Errorf("%w: no command given", ErrToolNotDetected)
	}
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if _, ok := registry[base]; ok {
		return base, nil
	}
	return "", fmt.Errorf("%w: %q", ErrToolNotDetected, name)
}

// firstToolArg returns the tool name implied by a checker command line,
// unwrapping "python[3] -m <tool>" to <tool>.
func firstToolArg(command []string) string {
	if len(command) == 0 {
		return ""
	}
	first := command[0]
	base := filepath.Base(first)
	if base == "python" || base == "python3" || strings.HasPrefix(base, "python3.") {
		for i := 1; i < len(command); i++ {
			if command[i] == "-m" && i+1 < len(command) {
				return command[i+1]
			}
			if !strings.HasPrefix(command[i], "-") {
				break
			}
		}
		return ""
	}
	return first
}
