// Package logflags turns the library's diagnostic logging on and off at
// run time, one flag per component. Logging is a side channel only;
// nothing in the library relies on it for correctness.
package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var proc = false
var terminal = false

var logOut io.WriteCloser

func makeLogger(flag bool, fields Fields) Logger {
	lf := loggerFactory
	if lf == nil {
		lf = newLogrusLogger
	}
	return lf(flag, fields, logOut)
}

func newLogrusLogger(flag bool, fields Fields, out io.Writer) Logger {
	entry := logrus.New().WithFields(logrus.Fields(fields))
	if out == nil {
		out = os.Stderr
	}
	entry.Logger.Out = out
	entry.Logger.Level = logrus.DebugLevel
	if !flag {
		entry.Logger.Level = logrus.PanicLevel
	}
	return &logrusLogger{entry}
}

// Proc returns true if the proc package should log.
func Proc() bool {
	return proc
}

// ProcLogger returns a logger for the proc package.
func ProcLogger() Logger {
	return makeLogger(proc, Fields{"layer": "proc"})
}

// Terminal returns true if the interactive inspector should log.
func Terminal() bool {
	return terminal
}

// TerminalLogger returns a logger for the interactive inspector.
func TerminalLogger() Logger {
	return makeLogger(terminal, Fields{"layer": "terminal"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the component flags based on the contents of logstr and
// redirects output to logDest, which may be a file path or a file
// descriptor number.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "tr-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "proc"
	}
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "proc":
			proc = true
		case "terminal":
			terminal = true
		}
	}
	return nil
}

// Close closes the file loggers were redirected to, if any.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}
