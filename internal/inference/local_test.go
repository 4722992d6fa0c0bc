package inference

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeRuntime scores a fixed two-token vocabulary. Token 0 follows with
// logit 2.0, token 1 with logit 0.0 at every position.
type fakeRuntime struct {
	loadCount int32
	loadErr   error
	tokens    map[string][]int
	started   chan struct{} // closed when a Load begins, for the race test
	release   chan struct{} // Load blocks until closed, when non-nil
}

func (f *fakeRuntime) Load(ctx context.Context) error {
	atomic.AddInt32(&f.loadCount, 1)
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		<-f.release
	}
	return f.loadErr
}

func (f *fakeRuntime) Tokenize(text string) ([]int, error) {
	toks, ok := f.tokens[text]
	if !ok {
		return nil, errors.New("unknown text")
	}
	return toks, nil
}

func (f *fakeRuntime) Eval(ctx context.Context, tokens []int) ([][]float64, error) {
	logits := make([][]float64, len(tokens))
	for i := range logits {
		logits[i] = []float64{2.0, 0.0}
	}
	return logits, nil
}

func (f *fakeRuntime) Generate(ctx context.Context, prompt string) (string, error) {
	return "ok", nil
}

func (f *fakeRuntime) Close() error { return nil }

func TestLocalLogProbSumsLogSoftmax(t *testing.T) {
	rt := &fakeRuntime{tokens: map[string][]int{"abc": {0, 0, 1}}}
	client := NewLocalClient("test-model", rt)

	got, err := client.LogProb(context.Background(), "abc")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Positions 0 and 1 predict tokens[1]=0 and tokens[2]=1; the first token
	// is never predicted. log softmax over logits [2, 0]:
	z := math.Log(math.Exp(2) + math.Exp(0))
	want := (2 - z) + (0 - z)
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestLocalLogProbRejectsSingleToken(t *testing.T) {
	rt := &fakeRuntime{tokens: map[string][]int{"x": {1}}}
	client := NewLocalClient("test-model", rt)

	if _, err := client.LogProb(context.Background(), "x"); err == nil {
		t.Error("Expected error for a single-token sentence")
	}
}

func TestLocalLoadIsSingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	rt := &fakeRuntime{
		tokens:  map[string][]int{"abc": {0, 1}},
		started: started,
		release: release,
	}
	client := NewLocalClient("test-model", rt)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.LogProb(context.Background(), "abc")
		}()
	}

	// Let every caller pile up on the in-flight load, then release it.
	<-started
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&rt.loadCount); n != 1 {
		t.Errorf("Expected exactly 1 load, got %d", n)
	}
}

func TestLocalLoadFailureIsTerminal(t *testing.T) {
	rt := &fakeRuntime{loadErr: errors.New("weights missing")}
	client := NewLocalClient("test-model", rt)

	_, err := client.LogProb(context.Background(), "abc")
	if !errors.Is(err, ErrRuntimeUnavailable) {
		t.Fatalf("Expected ErrRuntimeUnavailable, got %v", err)
	}

	// The failed load must not be retried.
	client.LogProb(context.Background(), "abc")
	if n := atomic.LoadInt32(&rt.loadCount); n != 1 {
		t.Errorf("Expected 1 load attempt after repeated calls, got %d", n)
	}
}

func TestLogSoftmaxStability(t *testing.T) {
	// Large logits overflow a naive softmax; max-subtraction must not.
	logits := []float64{1000, 999, 998}
	got := logSoftmaxAt(logits, 0)
	if math.IsInf(got, 0) || math.IsNaN(got) {
		t.Fatalf("Log softmax overflowed: %v", got)
	}
	want := -math.Log(1 + math.Exp(-1) + math.Exp(-2))
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
