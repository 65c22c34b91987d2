package terminal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/neg4n/tr/pkg/proc"
)

const defaultMaxReadSize = 4096

type cmdfunc func(t *Term, args string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands for the tr inspector.
type Commands struct {
	cmds []command
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// InspectCommands returns a Commands struct with default commands defined.
func InspectCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"regions", "maps"}, cmdFn: regions, helpMsg: `Print the memory regions of the target.

	regions [filter]

If filter is given, only regions whose path contains it are listed.`},
		{aliases: []string{"remap"}, cmdFn: remap, helpMsg: "Take a fresh snapshot of the target's memory regions."},
		{aliases: []string{"modules", "mods"}, cmdFn: modules, helpMsg: "Print the shared objects loaded into the target."},
		{aliases: []string{"read", "x"}, cmdFn: readCmd, helpMsg: `Read target memory.

	read <address> <length>

Prints a hex dump of length bytes at address. Addresses are hexadecimal
when prefixed with 0x, decimal otherwise.`},
		{aliases: []string{"write", "w"}, cmdFn: writeCmd, helpMsg: `Write target memory.

	write <address> <byte> [<byte> ...]

Bytes are hexadecimal, with or without the 0x prefix.`},
		{aliases: []string{"calltarget", "ct"}, cmdFn: calltarget, helpMsg: `Resolve the destination of a 5-byte relative call instruction.

	calltarget <address>`},
		{aliases: []string{"status"}, cmdFn: status, helpMsg: "Print information about the attached process."},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the inspector."},
	}

	return c
}

// Register custom commands. Expects cf to be a func of type cmdfunc,
// returning only an error.
func (c *Commands) Register(cmdstr string, cf cmdfunc, helpMsg string) {
	for i := range c.cmds {
		if c.cmds[i].match(cmdstr) {
			c.cmds[i].cmdFn = cf
			c.cmds[i].helpMsg = helpMsg
			return
		}
	}
	c.cmds = append(c.cmds, command{aliases: []string{cmdstr}, cmdFn: cf, helpMsg: helpMsg})
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	// A bare <enter> is a no-op.
	if cmdstr == "" {
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call runs the command in cmdstr on the terminal t.
func (c *Commands) Call(cmdstr string, t *Term) error {
	vals := strings.SplitN(strings.TrimSpace(cmdstr), " ", 2)
	cmdname := vals[0]
	var args string
	if len(vals) > 1 {
		args = strings.TrimSpace(vals[1])
	}
	return c.Find(cmdname)(t, args)
}

// Merge takes aliases defined in the config struct and merges them with
// the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args string) error {
	return errNoCmd
}

func nullCommand(t *Term, args string) error {
	return nil
}

func (c *Commands) help(t *Term, args string) error {
	if args != "" {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args {
					fmt.Fprintln(t.stdout, cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdAvailable(t, args)
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 0, '-', 0)
	sort.Sort(byFirstAlias(c.cmds))
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func regions(t *Term, args string) error {
	if err := t.ensureRegions(); err != nil {
		return err
	}
	rs := t.target.MemoryRegions()
	for i := range rs {
		r := &rs[i]
		if args != "" && !strings.Contains(r.Path, args) {
			continue
		}
		line := r.String()
		if idx := strings.IndexByte(line, ' '); idx > 0 {
			t.Println(line[:idx+1], line[idx+1:])
		}
	}
	return nil
}

func remap(t *Term, args string) error {
	if err := t.remapRegions(); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "mapped %d regions\n", len(t.target.MemoryRegions()))
	return nil
}

func modules(t *Term, args string) error {
	if err := t.ensureRegions(); err != nil {
		return err
	}
	for _, mod := range t.target.Modules() {
		fmt.Fprintln(t.stdout, mod)
	}
	return nil
}

func readCmd(t *Term, args string) error {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return errors.New("wrong number of arguments: read <address> <length>")
	}
	addr, err := parseAddr(fields[0])
	if err != nil {
		return err
	}
	length, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad length %q: %v", fields[1], err)
	}
	max := t.conf.MaxReadSize
	if max <= 0 {
		max = defaultMaxReadSize
	}
	if length > uint64(max) {
		return fmt.Errorf("length %d exceeds the configured maximum of %d", length, max)
	}

	buf := make([]byte, length)
	n, err := t.target.ReadMemory(buf, addr)
	if err != nil {
		if !errors.Is(err, proc.ErrPartialTransfer) {
			return err
		}
		fmt.Fprintf(t.stdout, "partial read: %d of %d bytes\n", n, length)
	}
	fmt.Fprintf(t.stdout, "%#x:\n%s", addr, hex.Dump(buf[:n]))
	return nil
}

func writeCmd(t *Term, args string) error {
	v, err := argv.Argv(args,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return err
	}
	if len(v) != 1 || len(v[0]) < 2 {
		return errors.New("wrong number of arguments: write <address> <byte> [<byte> ...]")
	}
	w := v[0]

	addr, err := parseAddr(w[0])
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(w)-1)
	for _, tok := range w[1:] {
		b, err := strconv.ParseUint(strings.TrimPrefix(tok, "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("bad byte %q: %v", tok, err)
		}
		data = append(data, byte(b))
	}

	n, err := t.target.WriteMemory(addr, data)
	if err != nil {
		if !errors.Is(err, proc.ErrPartialTransfer) {
			return err
		}
		fmt.Fprintf(t.stdout, "partial write: %d of %d bytes\n", n, len(data))
		return nil
	}
	fmt.Fprintf(t.stdout, "wrote %d bytes\n", n)
	return nil
}

func calltarget(t *Term, args string) error {
	if args == "" {
		return errors.New("wrong number of arguments: calltarget <address>")
	}
	addr, err := parseAddr(args)
	if err != nil {
		return err
	}
	target, err := t.target.CallTarget(addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%#x\n", target)
	return nil
}

func status(t *Term, args string) error {
	fmt.Fprintf(t.stdout, "Process %q pid %d, %d regions mapped\n", t.target.Name(), t.target.Pid(), len(t.target.MemoryRegions()))
	return nil
}

func exitCommand(t *Term, args string) error {
	return ExitRequestError{}
}

// parseAddr accepts addresses in hexadecimal with the 0x prefix, octal
// with a leading 0, and decimal otherwise.
func parseAddr(s string) (uint64, error) {
	addr, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %v", s, err)
	}
	return addr, nil
}
