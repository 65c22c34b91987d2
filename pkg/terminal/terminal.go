// Package terminal implements the interactive inspector: reading user
// input and dispatching to the appropriate introspection commands.
package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derekparker/trie"
	"github.com/go-delve/liner"
	"github.com/mattn/go-isatty"

	"github.com/neg4n/tr/pkg/config"
	"github.com/neg4n/tr/pkg/logflags"
	"github.com/neg4n/tr/pkg/proc"
)

const (
	historyFile                 string = ".tr_history"
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"
)

const (
	ansiBlack   = 30
	ansiRed     = 31
	ansiGreen   = 32
	ansiYellow  = 33
	ansiBlue    = 34
	ansiMagenta = 35
	ansiCyan    = 36
	ansiWhite   = 37
	ansiBrBlack = 90
	ansiBrWhite = 97
)

// Term represents the terminal running the inspector, attached to one
// target process.
type Term struct {
	target *proc.Process
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	dumb   bool
	stdout io.Writer

	// completions indexes command aliases and the target's module
	// names for tab completion.
	completions *trie.Trie
}

// ExitRequestError is returned when the user exits the inspector.
type ExitRequestError struct{}

func (ExitRequestError) Error() string {
	return ""
}

// New returns a new Term attached to target.
func New(target *proc.Process, conf *config.Config) *Term {
	cmds := InspectCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	if conf == nil {
		conf = &config.Config{}
	}

	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb"
	if !dumb && !isatty.IsTerminal(os.Stdout.Fd()) {
		dumb = true
	}

	if conf.RegionListColor < ansiBlack ||
		conf.RegionListColor > ansiBrWhite ||
		(conf.RegionListColor > ansiWhite && conf.RegionListColor < ansiBrBlack) {
		conf.RegionListColor = ansiBlue
	}

	t := &Term{
		target: target,
		conf:   conf,
		prompt: "(tr) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: os.Stdout,
	}
	t.rebuildCompleter()
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// rebuildCompleter reindexes command aliases and the names of the
// target's loaded modules. Called again after every remap.
func (t *Term) rebuildCompleter() {
	idx := trie.New()
	for _, cmd := range t.cmds.cmds {
		for _, alias := range cmd.aliases {
			idx.Add(alias, nil)
		}
	}
	for _, mod := range t.target.Modules() {
		idx.Add(mod, nil)
	}
	t.completions = idx
}

// Run begins the interactive loop, returning the exit status when the
// user quits.
func (t *Term) Run() (int, error) {
	defer t.Close()

	logger := logflags.TerminalLogger()

	t.line.SetCompleter(func(line string) []string {
		if !t.completions.HasKeysWithPrefix(line) {
			return nil
		}
		return t.completions.PrefixSearch(line)
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.", err)
	}

	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.", err)
		}
	}
	if f != nil {
		t.line.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("Attached to %q (pid %d). Type 'help' for list of commands.\n", t.target.Name(), t.target.Pid())

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}

		logger.Debugf("command: %q", cmdstr)

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}
	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}
	return l, nil
}

func (t *Term) handleExit() (int, error) {
	if fullHistoryFile, err := config.GetConfigFilePath(historyFile); err == nil {
		if f, err := os.Create(fullHistoryFile); err == nil {
			if _, err := t.line.WriteHistory(f); err != nil {
				fmt.Println("readline history could not be saved:", err)
			}
			f.Close()
		}
	}
	return 0, nil
}

// ensureRegions maps the target's regions on first use so that plain
// "regions" or "modules" work without an explicit remap.
func (t *Term) ensureRegions() error {
	if t.target.MemoryRegions() == nil {
		return t.remapRegions()
	}
	return nil
}

func (t *Term) remapRegions() error {
	if err := t.target.MapMemoryRegions(); err != nil {
		return err
	}
	t.rebuildCompleter()
	return nil
}

// Println prints str prefixed by prefix, colorizing the prefix when the
// terminal supports it.
func (t *Term) Println(prefix, str string) {
	if !t.dumb {
		terminalColorEscapeCode := fmt.Sprintf(terminalHighlightEscapeCode, t.conf.RegionListColor)
		prefix = fmt.Sprintf("%s%s%s", terminalColorEscapeCode, prefix, terminalResetEscapeCode)
	}
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}
