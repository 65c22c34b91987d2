package logflags

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func resetFlags() {
	proc = false
	terminal = false
	logOut = nil
	loggerFactory = nil
}

func TestSetupComponents(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "proc,terminal", ""); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !Proc() || !Terminal() {
		t.Errorf("expected both components enabled, proc=%v terminal=%v", Proc(), Terminal())
	}
}

func TestSetupDefaultComponent(t *testing.T) {
	defer resetFlags()
	if err := Setup(true, "", ""); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !Proc() {
		t.Errorf("expected the proc component to be the default")
	}
	if Terminal() {
		t.Errorf("terminal component enabled unexpectedly")
	}
}

func TestSetupLogstrWithoutLog(t *testing.T) {
	defer resetFlags()
	if err := Setup(false, "proc", ""); err == nil {
		t.Fatalf("expected --log-output without --log to be rejected")
	}
}

func TestDisabledLoggerIsSilent(t *testing.T) {
	defer resetFlags()
	var buf bytes.Buffer
	logger := newLogrusLogger(false, Fields{"layer": "proc"}, &buf)
	logger.Debugf("should not appear")
	logger.Errorf("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("disabled logger produced output: %q", buf.String())
	}
}

func TestEnabledLoggerWritesFields(t *testing.T) {
	defer resetFlags()
	var buf bytes.Buffer
	logger := newLogrusLogger(true, Fields{"layer": "proc"}, &buf)
	logger.Debugf("resolved process %q", "gpm")
	out := buf.String()
	if !strings.Contains(out, "gpm") || !strings.Contains(out, "layer=proc") {
		t.Errorf("unexpected log line: %q", out)
	}
}

func TestSetLoggerFactory(t *testing.T) {
	defer resetFlags()
	expected := &logrusLogger{}
	SetLoggerFactory(func(flag bool, fields Fields, out io.Writer) Logger {
		if !flag {
			t.Errorf("expected flag to be true")
		}
		if len(fields) != 1 || fields["layer"] != "proc" {
			t.Errorf("expected fields to be {'layer':'proc'}; but was <%v>", fields)
		}
		return expected
	})
	proc = true
	if actual := ProcLogger(); actual != Logger(expected) {
		t.Errorf("expected the factory's logger to be returned")
	}
}
