package adb

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// fakeCommander records invocations and replays scripted outputs.
type fakeCommander struct {
	calls   [][]string
	outputs []string
	errs    []error
	stream  string
}

func (f *fakeCommander) Run(ctx context.Context, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	i := len(f.calls) - 1
	var out string
	if i < len(f.outputs) {
		out = f.outputs[i]
	}
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return []byte(out), err
}

func (f *fakeCommander) Start(ctx context.Context, args ...string) (io.ReadCloser, error) {
	f.calls = append(f.calls, args)
	return io.NopCloser(strings.NewReader(f.stream)), nil
}

func TestShell(t *testing.T) {
	fake := &fakeCommander{outputs: []string{"enabled\n"}}
	d := NewWithCommander("SERIAL1", nil, fake)
	out, err := d.Shell(context.Background(), "cmd", "wifi", "status")
	if err != nil {
		t.Fatalf("Shell: %v", err)
	}
	if out != "enabled" {
		t.Errorf("Shell output = %q, want %q", out, "enabled")
	}
	want := []string{"-s", "SERIAL1", "shell", "cmd", "wifi", "status"}
	if got := strings.Join(fake.calls[0], " "); got != strings.Join(want, " ") {
		t.Errorf("adb args = %q, want %q", got, strings.Join(want, " "))
	}
}

func TestForward(t *testing.T) {
	fake := &fakeCommander{outputs: []string{"41213\n"}}
	d := NewWithCommander("SERIAL1", nil, fake)
	port, err := d.Forward(context.Background(), 8080)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if port != 41213 {
		t.Errorf("Forward port = %d, want 41213", port)
	}
}

func TestForwardBadOutput(t *testing.T) {
	fake := &fakeCommander{outputs: []string{"error: device offline"}}
	d := NewWithCommander("SERIAL1", nil, fake)
	if _, err := d.Forward(context.Background(), 8080); err == nil {
		t.Fatal("Forward succeeded on garbage output")
	}
}

func TestIsRoot(t *testing.T) {
	tests := []struct {
		output string
		want   bool
	}{
		{"uid=0(root) gid=0(root)", true},
		{"uid=2000(shell) gid=2000(shell)", false},
	}
	for _, tt := range tests {
		fake := &fakeCommander{outputs: []string{tt.output}}
		d := NewWithCommander("S", nil, fake)
		if got := d.IsRoot(context.Background()); got != tt.want {
			t.Errorf("IsRoot with %q = %v, want %v", tt.output, got, tt.want)
		}
	}
}

func TestPingRetriesOnce(t *testing.T) {
	fake := &fakeCommander{
		outputs: []string{"", "10 packets transmitted, 10 received"},
		errs:    []error{errors.New("adb: device offline"), nil},
	}
	d := NewWithCommander("S", nil, fake)
	out, err := d.Ping(context.Background(), 10, "8.8.8.8")
	if err != nil {
		t.Fatalf("Ping after retry: %v", err)
	}
	if !strings.Contains(out, "10 received") {
		t.Errorf("Ping output = %q", out)
	}
	if len(fake.calls) != 2 {
		t.Errorf("Ping ran %d times, want 2", len(fake.calls))
	}
}

func TestInstrumentParsesServingPort(t *testing.T) {
	fake := &fakeCommander{stream: "SNIPPET START, PROTOCOL 1 0\nSNIPPET SERVING, PORT 34567\n"}
	d := NewWithCommander("S", nil, fake)
	port, err := d.Instrument(context.Background(), "com.example.snippet", "com.example/.Runner")
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if port != 34567 {
		t.Errorf("Instrument port = %d, want 34567", port)
	}
}

func TestInstrumentNoBanner(t *testing.T) {
	fake := &fakeCommander{stream: "INSTRUMENTATION_RESULT: shortMsg=Process crashed.\n"}
	d := NewWithCommander("S", nil, fake)
	if _, err := d.Instrument(context.Background(), "pkg", "runner"); err == nil {
		t.Fatal("Instrument succeeded without a serving banner")
	}
}
