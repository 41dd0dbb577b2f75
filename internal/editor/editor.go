// Package editor turns a selected block into an editor launch command or
// URL, per a small built-in registry of known editors plus a generic
// template fallback for anything else.
package editor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ddaanet/tuick/internal/block"
)

// Launcher builds the launch command/URL for one editor.
type Launcher func(b block.Block) string

// Registry is the known set of editor launchers, keyed by name.
var Registry = map[string]Launcher{
	"vscode":  vscodeLauncher,
	"sublime": sublimeLauncher,
	"vim":     terminalLauncher("vim"),
	"nvim":    terminalLauncher("nvim"),
}

// ErrUnknownEditor is returned by Launch for a name not in Registry and
// not a recognised template placeholder.
type ErrUnknownEditor struct {
	Name string
}

func (e *ErrUnknownEditor) Error() string {
	return fmt.Sprintf("editor: unknown editor %q", e.Name)
}

// Launch resolves name to a launcher and applies it to b. If name
// contains the %file placeholder it is treated as a custom command
// template (in which %line and %col are also substituted) instead of a
// registry lookup.
func Launch(name string, b block.Block) (string, error) {
	if strings.Contains(name, "%file") {
		return expandTemplate(name, b), nil
	}
	l, ok := Registry[name]
	if !ok {
		return "", &ErrUnknownEditor{Name: name}
	}
	return l(b), nil
}

func vscodeLauncher(b block.Block) string {
	return fmt.Sprintf("vscode://file/%s%s", b.File, locationSuffix(b))
}

func sublimeLauncher(b block.Block) string {
	return fmt.Sprintf("subl %s%s", b.File, locationSuffix(b))
}

// locationSuffix builds the trailing ":line:col" segment for a position
// launcher. A missing column is omitted; a missing line omits the column
// too, since a column is meaningless without a line.
func locationSuffix(b block.Block) string {
	if b.Line <= 0 {
		return ""
	}
	if b.Col <= 0 {
		return fmt.Sprintf(":%d", b.Line)
	}
	return fmt.Sprintf(":%d:%d", b.Line, b.Col)
}

func terminalLauncher(bin string) Launcher {
	return func(b block.Block) string {
		if b.Line == 0 {
			return fmt.Sprintf("%s %s", bin, b.File)
		}
		return fmt.Sprintf("%s +%d %s", bin, b.Line, b.File)
	}
}

func expandTemplate(tpl string, b block.Block) string {
	r := strings.NewReplacer(
		"%file", b.File,
		"%line", strconv.Itoa(lineOrOne(b.Line)),
		"%col", strconv.Itoa(lineOrOne(b.Col)),
	)
	return r.Replace(tpl)
}

func lineOrOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
