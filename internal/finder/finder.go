// Package finder drives the fuzzy-finder subprocess that presents the
// checker's block stream to the user and turns a selection into a
// `tuick --select` invocation.
package finder

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"

	"github.com/ddaanet/tuick/internal/block"
)

// BindKeys customises the fuzzy-finder's keybindings. Zero values fall
// back to the spec's defaults.
type BindKeys struct {
	Reload string // default "ctrl-r"
}

// Config configures how the Driver invokes the fuzzy-finder binary.
type Config struct {
	// Binary is the fuzzy-finder executable, e.g. "fzf".
	Binary string
	// SelectCommand is the argv template tuick re-invokes itself with on
	// selection; {1}..{5} are substituted by the finder with the
	// selected block's file/line/col/endLine/endCol fields.
	SelectCommand []string
	// ReloadCommand is the argv tuick re-invokes itself with to request
	// a reload (typically "tuick --reload").
	ReloadCommand []string
	// LoadCommand is the argv run once the finder has finished consuming
	// the current block stream. A no-op except for accounting: when
	// empty, the bind invokes the shell no-op "true".
	LoadCommand []string
	Binds       BindKeys
}

// Driver spawns and supervises the fuzzy-finder process.
type Driver struct {
	cfg Config
}

// New builds a Driver with cfg.
func New(cfg Config) *Driver {
	if cfg.Binds.Reload == "" {
		cfg.Binds.Reload = "ctrl-r"
	}
	return &Driver{cfg: cfg}
}

// Handle represents one running fuzzy-finder process.
type Handle struct {
	cmd  *exec.Cmd
	ptmx *os.File
}

// Stdin returns the writer that feeds the serialised block stream to the
// finder. Writes block on OS pipe back-pressure exactly as a terminal
// would; there is no intermediate buffering.
func (h *Handle) Stdin() io.Writer {
	return h.ptmx
}

// Wait blocks until the finder process exits.
func (h *Handle) Wait() error {
	defer h.ptmx.Close()
	return h.cmd.Wait()
}

// Stop terminates the finder process.
func (h *Handle) Stop() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

// argv builds the fuzzy-finder's command line per spec.md §4.5: a
// 0x1F delimiter, the display column fixed to field 6, and bind flags
// for reload/enter/zero-results-abort.
func (d *Driver) argv() []string {
	loadCmd := "true"
	if len(d.cfg.LoadCommand) > 0 {
		loadCmd = shellJoin(d.cfg.LoadCommand)
	}
	args := []string{
		"--delimiter", "\x1f",
		"--with-nth=6",
		"--bind", "zero:abort",
		"--bind", fmt.Sprintf("load:execute-silent(%s)", loadCmd),
	}
	if len(d.cfg.ReloadCommand) > 0 {
		args = append(args, "--bind",
			fmt.Sprintf("%s:reload(%s)", d.cfg.Binds.Reload, shellJoin(d.cfg.ReloadCommand)))
	}
	if len(d.cfg.SelectCommand) > 0 {
		args = append(args, "--bind",
			fmt.Sprintf("enter:execute(%s {1} {2} {3} {4} {5})", shellJoin(d.cfg.SelectCommand)))
	}
	return args
}

// Start spawns the fuzzy-finder attached to a real pty, exactly as a
// foreground terminal program, and returns a Handle whose Stdin is fed
// the block stream by the caller.
func (d *Driver) Start() (*Handle, error) {
	binary := d.cfg.Binary
	if binary == "" {
		binary = "fzf"
	}
	cmd := exec.Command(binary, d.argv()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 80, Rows: 24})
	if err != nil {
		return nil, fmt.Errorf("finder: start %s: %w", binary, err)
	}
	return &Handle{cmd: cmd, ptmx: ptmx}, nil
}

func shellJoin(argv []string) string {
	s := ""
	for i, a := range argv {
		if i > 0 {
			s += " "
		}
		s += a
	}
	return s
}

// SerializeAll writes the given blocks to w in source order, one
// NUL-terminated record per block, stopping at the first encoding
// error.
func SerializeAll(w io.Writer, blocks []block.Block) error {
	for _, b := range blocks {
		if err := block.Encode(w, block.StripDelimiters(b)); err != nil {
			return err
		}
	}
	return nil
}
