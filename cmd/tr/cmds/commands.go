// Package cmds implements the command line interface of tr.
package cmds

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neg4n/tr/pkg/config"
	"github.com/neg4n/tr/pkg/logflags"
	"github.com/neg4n/tr/pkg/proc"
	"github.com/neg4n/tr/pkg/terminal"
	"github.com/neg4n/tr/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const defaultMaxReadSize = 4096

const trCommandLongDesc = `tr is a process introspection and remote memory access tool for Linux.

It resolves running processes by command name, lists their memory regions and
loaded shared objects, and reads and writes their memory through the kernel's
process_vm_readv and process_vm_writev transfer calls.

Targets are given either as a pid or as an exact command name, for example:

` + "`tr regions gpm` or `tr read 1234 0x7f0000001000 64`"

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main tr root command.
	rootCommand = &cobra.Command{
		Use:   "tr",
		Short: "tr is a process introspection tool for Linux.",
		Long:  trCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (proc, terminal).")
	rootCommand.PersistentFlags().StringVar(&logDest, "log-dest", "", "Writes logs to the specified file or file descriptor.")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return logflags.Setup(log, logOutput, logDest)
	}
	rootCommand.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		logflags.Close()
	}

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tr\n%s\nGo: %s\n", version.TrVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	// 'find' subcommand.
	findCommand := &cobra.Command{
		Use:   "find <name>",
		Short: "Finds the pid of the process with the given command name.",
		Long: `Finds the pid of the process with the given command name.

The name must match the process's comm file exactly; no substring or prefix
matching is performed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := proc.FindProcess(args[0])
			if err != nil {
				return err
			}
			fmt.Println(p.Pid())
			return nil
		},
	}
	rootCommand.AddCommand(findCommand)

	// 'regions' subcommand.
	regionsCommand := &cobra.Command{
		Use:   "regions <target>",
		Short: "Lists the memory regions of the target process.",
		Args:  cobra.ExactArgs(1),
		RunE:  regionsCmd,
	}
	rootCommand.AddCommand(regionsCommand)

	// 'modules' subcommand.
	modulesCommand := &cobra.Command{
		Use:   "modules <target>",
		Short: "Lists the shared objects loaded into the target process.",
		Args:  cobra.ExactArgs(1),
		RunE:  modulesCmd,
	}
	rootCommand.AddCommand(modulesCommand)

	// 'read' subcommand.
	readCommand := &cobra.Command{
		Use:   "read <target> <address> <length>",
		Short: "Reads target memory and prints a hex dump.",
		Long: `Reads target memory and prints a hex dump.

A transfer that stops short, for example at the edge of the last mapped page
of a region, is reported together with the bytes that were read.`,
		Args: cobra.ExactArgs(3),
		RunE: readCmd,
	}
	rootCommand.AddCommand(readCommand)

	// 'write' subcommand.
	writeCommand := &cobra.Command{
		Use:   "write <target> <address> <byte> [<byte> ...]",
		Short: "Writes bytes to target memory.",
		Long: `Writes bytes to target memory.

Bytes are hexadecimal, with or without the 0x prefix. A partial write is
reported with the count of bytes that were transferred.`,
		Args: cobra.MinimumNArgs(3),
		RunE: writeCmd,
	}
	rootCommand.AddCommand(writeCommand)

	// 'calltarget' subcommand.
	calltargetCommand := &cobra.Command{
		Use:   "calltarget <target> <address>",
		Short: "Resolves the destination of a 5-byte relative call instruction.",
		Args:  cobra.ExactArgs(2),
		RunE:  calltargetCmd,
	}
	rootCommand.AddCommand(calltargetCommand)

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach <name>",
		Short: "Opens the interactive inspector on the named process.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := proc.FindProcess(args[0])
			if err != nil {
				return err
			}
			status, err := terminal.New(target, conf).Run()
			if err != nil {
				return err
			}
			logflags.Close()
			os.Exit(status)
			return nil
		},
	}
	rootCommand.AddCommand(attachCommand)

	return rootCommand
}

func regionsCmd(cmd *cobra.Command, args []string) error {
	pid, err := resolvePid(args[0])
	if err != nil {
		return err
	}
	regions, err := proc.ListMemoryRegions(pid)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, ' ', 0)
	for i := range regions {
		r := &regions[i]
		fmt.Fprintf(w, "%x-%x\t%s\t%08x\t%02x:%02x\t%d\t%s\n",
			r.Start, r.End, r.PermString(), r.Offset, r.DeviceMajor, r.DeviceMinor, r.Inode, r.Path)
	}
	return w.Flush()
}

func modulesCmd(cmd *cobra.Command, args []string) error {
	pid, err := resolvePid(args[0])
	if err != nil {
		return err
	}
	regions, err := proc.ListMemoryRegions(pid)
	if err != nil {
		return err
	}
	for _, mod := range proc.Modules(regions) {
		fmt.Println(mod)
	}
	return nil
}

func readCmd(cmd *cobra.Command, args []string) error {
	pid, err := resolvePid(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	length, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		return fmt.Errorf("bad length %q: %v", args[2], err)
	}
	max := defaultMaxReadSize
	if conf != nil && conf.MaxReadSize > 0 {
		max = conf.MaxReadSize
	}
	if length > uint64(max) {
		return fmt.Errorf("length %d exceeds the configured maximum of %d", length, max)
	}

	buf := make([]byte, length)
	n, err := proc.ReadMemory(pid, buf, addr)
	if err != nil {
		if !errors.Is(err, proc.ErrPartialTransfer) {
			return err
		}
		fmt.Printf("partial read: %d of %d bytes\n", n, length)
	}
	fmt.Printf("%#x:\n%s", addr, hex.Dump(buf[:n]))
	return nil
}

func writeCmd(cmd *cobra.Command, args []string) error {
	pid, err := resolvePid(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	data, err := parseBytes(args[2:])
	if err != nil {
		return err
	}

	n, err := proc.WriteMemory(pid, addr, data)
	if err != nil {
		if !errors.Is(err, proc.ErrPartialTransfer) {
			return err
		}
		fmt.Printf("partial write: %d of %d bytes\n", n, len(data))
		return nil
	}
	fmt.Printf("wrote %d bytes\n", n)
	return nil
}

func calltargetCmd(cmd *cobra.Command, args []string) error {
	pid, err := resolvePid(args[0])
	if err != nil {
		return err
	}
	addr, err := parseAddr(args[1])
	if err != nil {
		return err
	}
	target, err := proc.CallTarget(pid, addr)
	if err != nil {
		return err
	}
	fmt.Printf("%#x\n", target)
	return nil
}

// resolvePid turns a command line target argument, either a pid or a
// process name, into a pid.
func resolvePid(arg string) (int, error) {
	if pid, err := strconv.Atoi(arg); err == nil {
		return pid, nil
	}
	p, err := proc.FindProcess(arg)
	if err != nil {
		return 0, err
	}
	return p.Pid(), nil
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

func parseBytes(toks []string) ([]byte, error) {
	data := make([]byte, 0, len(toks))
	for _, tok := range toks {
		b, err := strconv.ParseUint(strings.TrimPrefix(tok, "0x"), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad byte %q: %v", tok, err)
		}
		data = append(data, byte(b))
	}
	return data, nil
}
