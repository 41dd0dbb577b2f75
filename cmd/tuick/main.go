// Command tuick streams a checker's diagnostics through a fuzzy-finder,
// with live reload on demand.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ddaanet/tuick/internal/block"
	"github.com/ddaanet/tuick/internal/checker"
	"github.com/ddaanet/tuick/internal/config"
	"github.com/ddaanet/tuick/internal/control"
	"github.com/ddaanet/tuick/internal/editor"
	"github.com/ddaanet/tuick/internal/errorformat"
	"github.com/ddaanet/tuick/internal/finder"
	"github.com/ddaanet/tuick/internal/logger"
	"github.com/ddaanet/tuick/internal/session"
	"github.com/ddaanet/tuick/internal/watcher"
)

// Exit codes per the CLI's documented contract.
const (
	exitOK int = iota
	exitUsage
	exitCheckerNotFound
	exitInternal
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	var (
		formatMode bool
		reloadMode bool
		selectMode bool
		loadedMode bool
		recipeName string
		patternStr string
		verbose    bool
		filterMode string
		watchCmd   string
	)

	root := &cobra.Command{
		Use:           "tuick COMMAND [ARGS…]",
		Short:         "stream a checker's diagnostics through a fuzzy-finder, with live reload",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(verbose, os.Getenv("TUICK_LOG")); err != nil {
				return err
			}
			if filterMode != "off" {
				return &usageError{err: fmt.Errorf("--finder-filter currently only accepts %q", "off")}
			}
			switch {
			case selectMode:
				return runSelect(args)
			case loadedMode:
				return runLoaded()
			case reloadMode:
				return runReload(args)
			case formatMode:
				return runFormat(args, recipeName, patternStr)
			default:
				return runSession(cmd.Context(), args, recipeName, patternStr, watchCmd)
			}
		},
	}

	root.Flags().BoolVar(&formatMode, "format", false, "run COMMAND and emit the block stream to stdout, then exit")
	root.Flags().BoolVar(&reloadMode, "reload", false, "post a reload to the control endpoint, then run COMMAND if given")
	root.Flags().BoolVar(&selectMode, "select", false, "print the editor launch command or URL for FILE LINE COL END_LINE END_COL")
	root.Flags().BoolVar(&loadedMode, "loaded", false, "report to the control endpoint that the finder finished consuming the stream")
	root.Flags().StringVarP(&recipeName, "format-recipe", "f", "auto", "errorformat recipe: auto or a recipe name")
	root.Flags().StringVarP(&patternStr, "errorformat", "e", "", "raw errorformat pattern, overrides -f")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.Flags().StringVar(&filterMode, "finder-filter", "off", "reserved: finder filtering mode, currently only \"off\" is accepted")
	root.Flags().StringVar(&watchCmd, "watch-cmd", "", "run this external watcher command instead of the native fsnotify watcher (it must call tuick --reload itself)")

	root.SetArgs(argv)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "tuick:", err)
		return exitCodeOf(err)
	}
	return exitOK
}

// usageError marks an error as a usage error (exit code 1).
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// checkerNotFoundError marks an error as exit code 2.
type checkerNotFoundError struct{ err error }

func (e *checkerNotFoundError) Error() string { return e.err.Error() }
func (e *checkerNotFoundError) Unwrap() error { return e.err }

func exitCodeOf(err error) int {
	switch err.(type) {
	case *usageError:
		return exitUsage
	case *checkerNotFoundError:
		return exitCheckerNotFound
	default:
		return exitInternal
	}
}

// resolveRecipe picks the errorformat recipe for command. The -e pattern
// flag wins outright; an explicit -f name is used as given; otherwise
// cfg.Recipes may override auto-detection by the command's base name
// before falling back to the registry's own detection.
func resolveRecipe(command []string, name, pattern string, recipes map[string]string) (errorformat.Recipe, error) {
	registry := errorformat.DefaultRegistry()
	if pattern != "" {
		re, err := errorformat.CompilePattern(pattern)
		if err != nil {
			return errorformat.Recipe{}, &usageError{err: err}
		}
		return errorformat.Recipe{Name: "custom", Anchor: re}, nil
	}
	if name == "" || name == "auto" {
		if override, ok := recipes[checkerBaseName(command)]; ok {
			name = override
		} else {
			detected, err := errorformat.DetectTool(command, registry)
			if err != nil {
				return errorformat.Recipe{}, &checkerNotFoundError{err: err}
			}
			name = detected
		}
	}
	r, ok := registry[name]
	if !ok {
		return errorformat.Recipe{}, &usageError{err: fmt.Errorf("unknown recipe %q", name)}
	}
	return r, nil
}

// checkerBaseName returns command's extension-stripped base name, the
// key cfg.Recipes is keyed by.
func checkerBaseName(command []string) string {
	if len(command) == 0 {
		return ""
	}
	base := filepath.Base(command[0])
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// runFormat implements `tuick --format COMMAND`: run COMMAND and print the
// serialised block stream to stdout, then exit.
func runFormat(args []string, recipeName, pattern string) error {
	if len(args) == 0 {
		return &usageError{err: fmt.Errorf("missing COMMAND")}
	}
	mgr := config.NewManager()
	userDir, _ := config.GetUserConfigDir()
	projectDir, _ := config.GetProjectDir()
	_ = mgr.Load(userDir, projectDir)
	recipe, err := resolveRecipe(args, recipeName, pattern, mgr.Get().Recipes)
	if err != nil {
		return err
	}
	r := &checker.Runner{Recipe: recipe, Log: logger.Log}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, err := r.Start(ctx, 1, args)
	if err != nil {
		return &checkerNotFoundError{err: err}
	}
	for b := range g.Blocks() {
		if err := block.Encode(os.Stdout, block.StripDelimiters(b)); err != nil {
			fmt.Fprintln(os.Stderr, "tuick: dropping block:", err)
		}
	}
	_, err = g.AwaitExit(ctx)
	return err
}

// runReload implements `tuick --reload [COMMAND]`: post a reload to the
// control endpoint published via TUICK_RELOAD_PORT/TUICK_RELOAD_KEY, then
// exec COMMAND if one was given (used by the watcher's callback).
func runReload(args []string) error {
	port := os.Getenv("TUICK_RELOAD_PORT")
	key := os.Getenv("TUICK_RELOAD_KEY")
	if port == "" || key == "" {
		return &usageError{err: fmt.Errorf("TUICK_RELOAD_PORT/TUICK_RELOAD_KEY not set")}
	}
	url := fmt.Sprintf("http://127.0.0.1:%s/reload", port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(control.HeaderKey, key)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if len(args) == 0 {
		return nil
	}
	c := exec.Command(args[0], args[1:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	return c.Run()
}

// runLoaded implements `tuick --loaded`: report to the control endpoint
// that the finder finished consuming the current block stream. A no-op
// except for accounting.
func runLoaded() error {
	port := os.Getenv("TUICK_RELOAD_PORT")
	key := os.Getenv("TUICK_RELOAD_KEY")
	if port == "" || key == "" {
		return &usageError{err: fmt.Errorf("TUICK_RELOAD_PORT/TUICK_RELOAD_KEY not set")}
	}
	url := fmt.Sprintf("http://127.0.0.1:%s/loaded", port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(control.HeaderKey, key)
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// runSelect implements `tuick --select FILE LINE COL END_LINE END_COL`:
// it builds the configured editor's launch command or URL for the given
// location and prints it when stdout is a terminal. It does not run the
// command or open the URL itself.
func runSelect(args []string) error {
	if len(args) < 3 {
		return &usageError{err: fmt.Errorf("--select requires FILE LINE COL [END_LINE END_COL]")}
	}
	b := block.Block{File: args[0]}
	b.Line = atoiOrZero(args[1])
	b.Col = atoiOrZero(args[2])
	if len(args) > 3 {
		b.EndLine = atoiOrZero(args[3])
	}
	if len(args) > 4 {
		b.EndCol = atoiOrZero(args[4])
	}

	mgr := config.NewManager()
	userDir, _ := config.GetUserConfigDir()
	projectDir, _ := config.GetProjectDir()
	_ = mgr.Load(userDir, projectDir)
	editorName := mgr.Get().Editor
	if editorName == "" {
		editorName = "vscode"
	}

	launch, err := editor.Launch(editorName, b)
	if err != nil {
		return &usageError{err: err}
	}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Println(launch)
	}
	return nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// runSession implements the default `tuick COMMAND` form: the full
// session controller wiring a checker runner, control endpoint, finder,
// and watcher together.
func runSession(ctx context.Context, args []string, recipeName, pattern, watchCmd string) error {
	if len(args) == 0 {
		return &usageError{err: fmt.Errorf("missing COMMAND")}
	}

	mgr := config.NewManager()
	userDir, _ := config.GetUserConfigDir()
	projectDir, _ := config.GetProjectDir()
	_ = mgr.Load(userDir, projectDir)
	cfg := mgr.Get()

	recipe, err := resolveRecipe(args, recipeName, pattern, cfg.Recipes)
	if err != nil {
		return err
	}

	tok, err := session.NewToken()
	if err != nil {
		return err
	}

	saveDir := userDir
	if saveDir == "" {
		saveDir = os.TempDir()
	}
	_ = config.EnsureUserConfigDir(saveDir)

	sessionID := session.NewUUID()
	savePath := fmt.Sprintf("%s/%s.save", saveDir, sessionID)
	saveFile, err := os.OpenFile(savePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer saveFile.Close()

	ep := control.New(tok, logger.Log)
	port, err := ep.Listen()
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		self = "tuick"
	}

	fd := finder.New(finder.Config{
		ReloadCommand: []string{self, "--reload"},
		SelectCommand: []string{self, "--select"},
		LoadCommand:   []string{self, "--loaded"},
	})

	runner := &checker.Runner{Recipe: recipe, SaveWriter: saveFile, Log: logger.Log}

	os.Setenv("TUICK_RELOAD_PORT", strconv.Itoa(port))
	os.Setenv("TUICK_RELOAD_KEY", tok.String())

	ctrl := &session.Controller{
		Command:      args,
		Runner:       session.NewRunner(runner),
		FinderDriver: session.NewFinderStarter(fd),
		Endpoint:     ep,
		SaveFile:     saveFile,
		SoftTimeout:  cfg.SoftTerminateTimeout(),
		Log:          logger.Log,
		ID:           sessionID,
	}

	if wd, ok := watcherFromConfig(ctx, cfg, watchCmd); ok {
		ctrl.Watcher = wd
	}

	return ctrl.Run(ctx)
}

// watcherFromConfig picks the watcher driver: an explicit --watch-cmd
// spawns the external-command driver unchanged (it is responsible for
// calling `tuick --reload` itself); otherwise the native fsnotify
// driver watches the working directory.
func watcherFromConfig(ctx context.Context, cfg config.Config, watchCmd string) (session.Watcher, bool) {
	if watchCmd != "" {
		fields := strings.Fields(watchCmd)
		h, err := (&watcher.Driver{}).Start(ctx, fields)
		if err != nil {
			logger.Warn("watcher: external command failed to start", "error", err)
			return nil, false
		}
		return h, true
	}

	wd := &watcher.NativeDriver{Debounce: cfg.WatchDebounce(), Log: logger.Log}
	dir, err := os.Getwd()
	if err != nil {
		return nil, false
	}
	h, err := wd.Start(dir, nil, func() {
		client := &http.Client{Timeout: 2 * time.Second}
		port := os.Getenv("TUICK_RELOAD_PORT")
		key := os.Getenv("TUICK_RELOAD_KEY")
		if port == "" || key == "" {
			return
		}
		req, err := http.NewRequest(http.MethodPost, fmt.Sprintf("http://127.0.0.1:%s/reload", port), nil)
		if err != nil {
			return
		}
		req.Header.Set(control.HeaderKey, key)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
		}
	})
	if err != nil {
		logger.Warn("watcher: native fallback unavailable", "error", err)
		return nil, false
	}
	return h, true
}
