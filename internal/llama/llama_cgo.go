//go:build llama

package llama

/*
#cgo CXXFLAGS: -I${SRCDIR}/include -I${SRCDIR}/src -I${SRCDIR}/ggml_include -std=c++11 -DGGML_USE_METAL
#cgo LDFLAGS: -L${SRCDIR} -lbinding -lllama -lggml -lggml-base -lggml-cpu -lggml-blas -lggml-metal -lm
#cgo darwin LDFLAGS: -framework Accelerate -framework Foundation -framework Metal -framework MetalKit -framework MetalPerformanceShaders
#cgo linux LDFLAGS: -lstdc++
#include "binding.h"
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"unsafe"
)

// Runtime wraps a llama.cpp model through the CGO binding. It satisfies the
// inference.Runtime port; Load is called once by the owning client.
type Runtime struct {
	model unsafe.Pointer
	cfg   Config
}

// NewRuntime returns an unloaded runtime. Weights are read on Load so that
// construction stays cheap and load failures surface through the client's
// single-flight path.
func NewRuntime(cfg Config) *Runtime {
	return &Runtime{cfg: cfg}
}

func (r *Runtime) Load(ctx context.Context) error {
	if r.model != nil {
		return nil
	}

	if err := EnsureModel(r.cfg.ModelPath, r.cfg.ModelURL); err != nil {
		return err
	}

	modelPath := C.CString(r.cfg.ModelPath)
	defer C.free(unsafe.Pointer(modelPath))

	gpuLayers := 0
	if hasGPUSupport() {
		gpuLayers = 99 // Use all layers on GPU if available
	}

	slog.Info("Loading model with CGO",
		"path", r.cfg.ModelPath,
		"threads", r.cfg.Threads,
		"ctx_size", r.cfg.CtxSize,
		"gpu_layers", gpuLayers)

	model := C.load_model(modelPath, C.int(r.cfg.CtxSize), C.int(r.cfg.Threads), C.int(gpuLayers), C.bool(true), C.bool(false))
	if model == nil {
		return fmt.Errorf("failed to load model: %s", r.cfg.ModelPath)
	}

	r.model = model
	runtime.SetFinalizer(r, (*Runtime).cleanup)
	return nil
}

func (r *Runtime) Tokenize(text string) ([]int, error) {
	if r.model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	ctx := C.new_context(r.model, C.int(r.cfg.CtxSize), C.int(r.cfg.Threads))
	if ctx == nil {
		return nil, fmt.Errorf("failed to create context")
	}
	defer C.free_context(ctx)

	textCStr := C.CString(text)
	defer C.free(unsafe.Pointer(textCStr))

	buf := make([]C.int, r.cfg.CtxSize)
	n := int(C.tokenize_text(ctx, textCStr, &buf[0], C.int(len(buf))))
	if n < 0 {
		return nil, fmt.Errorf("tokenization failed")
	}

	tokens := make([]int, n)
	for i := 0; i < n; i++ {
		tokens[i] = int(buf[i])
	}
	return tokens, nil
}

// Eval runs one forward pass over the tokens and returns the next-token
// logits for every position.
func (r *Runtime) Eval(goctx context.Context, tokens []int) ([][]float64, error) {
	if r.model == nil {
		return nil, fmt.Errorf("model is nil")
	}

	ctx := C.new_context(r.model, C.int(r.cfg.CtxSize), C.int(r.cfg.Threads))
	if ctx == nil {
		return nil, fmt.Errorf("failed to create context")
	}
	defer C.free_context(ctx)

	vocab := int(C.vocab_size(r.model))
	cTokens := make([]C.int, len(tokens))
	for i, t := range tokens {
		cTokens[i] = C.int(t)
	}

	flat := make([]C.float, len(tokens)*vocab)
	rc := int(C.eval_logits(ctx, &cTokens[0], C.int(len(tokens)), &flat[0]))
	if rc != 0 {
		return nil, fmt.Errorf("forward pass failed with code %d", rc)
	}

	logits := make([][]float64, len(tokens))
	for i := range tokens {
		row := make([]float64, vocab)
		for j := 0; j < vocab; j++ {
			row[j] = float64(flat[i*vocab+j])
		}
		logits[i] = row
	}
	return logits, nil
}

func (r *Runtime) Generate(goctx context.Context, prompt string) (string, error) {
	if r.model == nil {
		return "", fmt.Errorf("model is nil")
	}

	ctx := C.new_context(r.model, C.int(r.cfg.CtxSize), C.int(r.cfg.Threads))
	if ctx == nil {
		return "", fmt.Errorf("failed to create context")
	}
	defer C.free_context(ctx)

	promptCStr := C.CString(prompt)
	defer C.free(unsafe.Pointer(promptCStr))

	maxTokens := 512
	resultSize := maxTokens * 4
	result := make([]byte, resultSize)

	tokensOut := int(C.llama_predict(
		ctx,
		promptCStr,
		(*C.char)(unsafe.Pointer(&result[0])),
		C.int(resultSize),
		C.int(maxTokens),
		C.float(0.7),
		C.float(1.0),
		C.int(40),
		C.float(1.1),
		C.int(64),
		C.bool(true),
	))
	if tokensOut < 0 {
		return "", fmt.Errorf("inference failed")
	}

	return C.GoString((*C.char)(unsafe.Pointer(&result[0]))), nil
}

func (r *Runtime) Close() error {
	r.cleanup()
	return nil
}

func (r *Runtime) cleanup() {
	if r.model != nil {
		C.free_model(r.model)
		r.model = nil
	}
}

func hasGPUSupport() bool {
	return bool(C.has_gpu_support())
}
