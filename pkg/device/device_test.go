package device

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/mdtb/wifitest/internal/snippet"
)

type fakeCaller struct {
	calls  []string
	result any
	err    error
}

func (f *fakeCaller) Call(_ context.Context, method string, _ ...any) (any, error) {
	f.calls = append(f.calls, method)
	return f.result, f.err
}

func (f *fakeCaller) CallAsync(_ context.Context, method string, _ ...any) (*snippet.CallbackHandler, error) {
	f.calls = append(f.calls, method)
	if f.err != nil {
		return nil, f.err
	}
	return snippet.NewCallbackHandler("1-1", f.result, f), nil
}

func TestSnippetRegistry(t *testing.T) {
	d := New("FAKE01", nil)
	fake := &fakeCaller{result: true}
	d.RegisterSnippet("wifi", fake)

	result, err := d.Snippet("wifi").Call(context.Background(), "wifiIsEnabled")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != true {
		t.Errorf("result = %v", result)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "wifiIsEnabled" {
		t.Errorf("calls = %v", fake.calls)
	}
}

func TestSnippetNotLoaded(t *testing.T) {
	d := New("FAKE01", nil)
	if _, err := d.Snippet("wifi").Call(context.Background(), "wifiIsEnabled"); err == nil {
		t.Error("Call on missing snippet succeeded")
	}
	if _, err := d.Snippet("wifi").CallAsync(context.Background(), "wifiAwareAttach"); err == nil {
		t.Error("CallAsync on missing snippet succeeded")
	}
}

func TestConcurrentExec(t *testing.T) {
	devices := []*AndroidDevice{New("A", nil), New("B", nil), New("C", nil)}
	var n atomic.Int32
	err := ConcurrentExec(context.Background(), devices, func(ctx context.Context, d *AndroidDevice) error {
		n.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("ConcurrentExec: %v", err)
	}
	if n.Load() != 3 {
		t.Errorf("fn ran %d times, want 3", n.Load())
	}
}

func TestConcurrentExecFirstError(t *testing.T) {
	devices := []*AndroidDevice{New("A", nil), New("B", nil)}
	boom := errors.New("boom")
	err := ConcurrentExec(context.Background(), devices, func(ctx context.Context, d *AndroidDevice) error {
		if d.Serial == "B" {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("ConcurrentExec error = %v, want boom", err)
	}
}
