package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestSetLogWriters_RoutesStreams(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops, diag, trace bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops, Diag: &diag, Trace: &trace})

	Opsf("ops %d", 1)
	Diagf("diag %d", 2)
	Tracef("trace %d", 3)

	if !strings.Contains(ops.String(), "ops 1") {
		t.Errorf("ops stream = %q", ops.String())
	}
	if !strings.Contains(diag.String(), "diag 2") {
		t.Errorf("diag stream = %q", diag.String())
	}
	if !strings.Contains(trace.String(), "trace 3") {
		t.Errorf("trace stream = %q", trace.String())
	}
	if strings.Contains(ops.String(), "diag") || strings.Contains(ops.String(), "trace") {
		t.Errorf("ops stream leaked other streams: %q", ops.String())
	}
	if !TraceEnabled() {
		t.Error("TraceEnabled() = false with a trace writer")
	}
}

func TestSetLogWriters_NilDisables(t *testing.T) {
	defer SetLogWriters(LogWriters{})

	var ops bytes.Buffer
	SetLogWriters(LogWriters{Ops: &ops})

	Diagf("should be dropped")
	Tracef("should be dropped")
	if TraceEnabled() {
		t.Error("TraceEnabled() = true without a trace writer")
	}
	if ops.Len() != 0 {
		t.Errorf("ops stream got %q", ops.String())
	}
}
