package faultline

import "github.com/crimson-sun/faultline/internal/engine/cluster"

type options struct {
	model          string
	modelDir       string
	apiKey         string
	minClusterSize int
	minSamples     int
}

// Option configures a Clusterer.
type Option func(*options)

// WithModel selects the embedding model key: "hash", "onnx",
// "openai-small", "openai-large", "gemini" or "ollama". Default: "hash".
func WithModel(key string) Option {
	return func(o *options) {
		o.model = key
	}
}

// WithModelDir sets the directory holding the local ONNX model.
// Expects: model_quantized.onnx, vocab.txt, 2_Dense/model.safetensors.
func WithModelDir(dir string) Option {
	return func(o *options) {
		o.modelDir = dir
	}
}

// WithAPIKey sets the key for a remote embedding model.
func WithAPIKey(key string) Option {
	return func(o *options) {
		o.apiKey = key
	}
}

// WithMinClusterSize sets the smallest group reported as a cluster.
// Default: 5.
func WithMinClusterSize(n int) Option {
	return func(o *options) {
		o.minClusterSize = n
	}
}

// WithMinSamples sets how many neighbours make a point dense.
// Default: the minimum cluster size.
func WithMinSamples(n int) Option {
	return func(o *options) {
		o.minSamples = n
	}
}

func defaultOptions() options {
	return options{
		model:          "hash",
		modelDir:       "models",
		minClusterSize: cluster.DefaultMinClusterSize,
	}
}
