package llama

// Config holds the configuration for the llama runtime
type Config struct {
	ModelPath string
	ModelURL  string
	Threads   int
	CtxSize   int
}
