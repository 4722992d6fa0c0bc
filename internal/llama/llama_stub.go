//go:build !llama

package llama

import (
	"context"
	"fmt"
)

// Runtime is the stub used when the native llama.cpp binding is not compiled
// in (build without the "llama" tag). Load reports the runtime as
// unavailable; the inference layer turns that into a typed unavailable
// result instead of a crash.
type Runtime struct {
	cfg Config
}

func NewRuntime(cfg Config) *Runtime {
	return &Runtime{cfg: cfg}
}

func (r *Runtime) Load(ctx context.Context) error {
	return fmt.Errorf("llama runtime not compiled in (build with -tags llama)")
}

func (r *Runtime) Tokenize(text string) ([]int, error) {
	return nil, fmt.Errorf("llama runtime not compiled in")
}

func (r *Runtime) Eval(ctx context.Context, tokens []int) ([][]float64, error) {
	return nil, fmt.Errorf("llama runtime not compiled in")
}

func (r *Runtime) Generate(ctx context.Context, prompt string) (string, error) {
	return "", fmt.Errorf("llama runtime not compiled in")
}

func (r *Runtime) Close() error {
	return nil
}
