package logger

import (
	"fmt"
	"testing"
)

type recordingInstance struct {
	lines []string
	debug bool
}

func (r *recordingInstance) record(level, message string, keyvals ...any) {
	r.lines = append(r.lines, fmt.Sprintf("%s %s %v", level, message, keyvals))
}

func (r *recordingInstance) Log(m string, kv ...any)   { r.record("LOG", m, kv...) }
func (r *recordingInstance) Debug(m string, kv ...any) { r.record("DEBUG", m, kv...) }
func (r *recordingInstance) Info(m string, kv ...any)  { r.record("INFO", m, kv...) }
func (r *recordingInstance) Warn(m string, kv ...any)  { r.record("WARN", m, kv...) }
func (r *recordingInstance) Error(m string, kv ...any) { r.record("ERROR", m, kv...) }
func (r *recordingInstance) Fatal(m string, kv ...any) { r.record("FATAL", m, kv...) }
func (r *recordingInstance) SetDebug(debug bool)       { r.debug = debug }

func TestDispatchesToAllInstances(t *testing.T) {
	a := &recordingInstance{}
	b := &recordingInstance{}
	Init(a, b)
	defer Init()

	Info("hello", "key", "value")
	Log("plain", "n", 1)

	for _, inst := range []*recordingInstance{a, b} {
		if len(inst.lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(inst.lines))
		}
		if inst.lines[0] != "INFO hello [key value]" {
			t.Fatalf("unexpected line %q", inst.lines[0])
		}
		if inst.lines[1] != "LOG plain [n 1]" {
			t.Fatalf("Log dropped key/values: %q", inst.lines[1])
		}
	}
}

func TestSetDebugReachesLevelSetters(t *testing.T) {
	a := &recordingInstance{}
	Init(a)
	defer Init()

	SetDebug(true)
	if !a.debug {
		t.Fatalf("expected debug to be enabled")
	}
	SetDebug(false)
	if a.debug {
		t.Fatalf("expected debug to be disabled")
	}
}
