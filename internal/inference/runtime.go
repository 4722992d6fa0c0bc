package inference

import "context"

// Runtime is the port to an in-process causal language model. The real
// implementation wraps llama.cpp through CGO (internal/llama); tests inject
// fakes. Keeping the runtime behind an interface means a missing native
// build surfaces as ErrRuntimeUnavailable instead of a link failure at the
// call site.
type Runtime interface {
	// Load loads tokenizer and weights. Called once per client; must be safe
	// to call from the goroutine that wins the load race.
	Load(ctx context.Context) error

	// Tokenize splits text into model token ids.
	Tokenize(text string) ([]int, error)

	// Eval runs a single forward pass and returns, for every input position,
	// the next-token logits over the vocabulary.
	Eval(ctx context.Context, tokens []int) ([][]float64, error)

	// Generate produces a text completion for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	Close() error
}
