package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/crimson-sun/faultline/internal/model"
)

// ortEnv manages global ONNX Runtime initialization. The runtime allows
// one environment per process.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNXConfig locates the local model assets.
type ONNXConfig struct {
	ModelPath      string // BERT-style encoder, [batch, seq, dim] output
	VocabPath      string // WordPiece vocab.txt
	ProjectionPath string // optional dense layer (safetensors); empty skips projection
	LibraryPath    string // onnxruntime shared library; defaults to libonnxruntime.so next to the model
	MaxSeqLen      int    // tokens per text including [CLS]/[SEP]; default 256
	Threads        int    // intra-op threads; default 4
}

// ONNXEmbedder runs tokenization, ONNX inference, mean pooling and an
// optional dense projection locally. Vectors are L2-normalized.
type ONNXEmbedder struct {
	mu      sync.Mutex // a session runs one inference at a time
	session *onnxSession
	tok     *tokenizer
	proj    *projection
	name    string
}

// NewONNX loads the model, vocabulary and projection. A missing or
// unreadable asset yields *model.ResourceError.
func NewONNX(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = filepath.Join(filepath.Dir(cfg.ModelPath), "libonnxruntime.so")
	}
	assets := []string{cfg.ModelPath, cfg.VocabPath, cfg.LibraryPath}
	if cfg.ProjectionPath != "" {
		assets = append(assets, cfg.ProjectionPath)
	}
	for _, p := range assets {
		if err := checkAsset(p); err != nil {
			return nil, err
		}
	}

	tok, err := newTokenizer(cfg.VocabPath, cfg.MaxSeqLen)
	if err != nil {
		return nil, &model.ResourceError{Asset: cfg.VocabPath, Err: err}
	}

	var proj *projection
	if cfg.ProjectionPath != "" {
		proj, err = loadProjection(cfg.ProjectionPath)
		if err != nil {
			return nil, &model.ResourceError{Asset: cfg.ProjectionPath, Err: err}
		}
	}

	if err := initORT(cfg.LibraryPath); err != nil {
		return nil, &model.ResourceError{Asset: cfg.LibraryPath, Err: err}
	}
	sess, err := newONNXSession(cfg.ModelPath, cfg.Threads)
	if err != nil {
		return nil, &model.ResourceError{Asset: cfg.ModelPath, Err: err}
	}

	if proj != nil && int(sess.embedDim) != proj.inDim {
		sess.close()
		return nil, &model.ResourceError{
			Asset: cfg.ProjectionPath,
			Err:   fmt.Errorf("ONNX output dim %d != projection input dim %d", sess.embedDim, proj.inDim),
		}
	}

	return &ONNXEmbedder{
		session: sess,
		tok:     tok,
		proj:    proj,
		name:    "onnx:" + filepath.Base(filepath.Dir(cfg.ModelPath)),
	}, nil
}

func checkAsset(path string) error {
	if path == "" {
		return &model.ResourceError{Asset: "(unset)", Err: errors.New("path not configured")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &model.ResourceError{Asset: path, Err: err}
	}
	if info.IsDir() {
		return &model.ResourceError{Asset: path, Err: errors.New("is a directory")}
	}
	return nil
}

// Dimensions returns the final embedding dimensionality.
func (e *ONNXEmbedder) Dimensions() int {
	if e.proj != nil {
		return e.proj.outDim
	}
	return int(e.session.embedDim)
}

func (e *ONNXEmbedder) Name() string { return e.name }

// Embed produces a single embedding vector for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one inference call, padded to the longest
// sequence in the batch.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := e.tok.tokenizeBatch(texts)

	e.mu.Lock()
	hidden, err := e.session.infer(
		batch.inputIDs, batch.attentionMask, batch.tokenTypeIDs,
		batch.batchSize, batch.seqLen,
	)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	dim := e.session.embedDim
	pooled := meanPool(hidden, batch.attentionMask, batch.batchSize, batch.seqLen, dim)

	results := make([][]float32, batch.batchSize)
	for i := int64(0); i < batch.batchSize; i++ {
		vec := pooled[i*dim : (i+1)*dim]
		if e.proj != nil {
			vec = e.proj.apply(vec)
		}
		results[i] = l2Normalize(vec)
	}
	return results, nil
}

// Close releases ONNX Runtime resources.
func (e *ONNXEmbedder) Close() error {
	if e.session != nil {
		return e.session.close()
	}
	return nil
}

// onnxSession wraps a DynamicAdvancedSession for BERT-style models.
type onnxSession struct {
	session    *ort.DynamicAdvancedSession
	inputNames []string
	outputName string
	embedDim   int64
}

func newONNXSession(modelPath string, threads int) (*onnxSession, error) {
	if threads <= 0 {
		threads = 4
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model info: %w", err)
	}
	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}

	// Expect a single tensor with shape [batch, seq, dim].
	if len(outputs) == 0 {
		return nil, errors.New("onnx: model has no outputs")
	}
	outputName := outputs[0].Name
	dims := outputs[0].Dimensions
	if len(dims) != 3 || dims[2] <= 0 {
		return nil, fmt.Errorf("onnx: expected [batch, seq, dim] output tensor, got %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(threads)
	opts.SetInterOpNumThreads(1)

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &onnxSession{
		session:    session,
		inputNames: inputNames,
		outputName: outputName,
		embedDim:   dims[2],
	}, nil
}

// validateInputs checks for the BERT-style inputs and returns them in feed
// order.
func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	have := make(map[string]bool, len(inputs))
	for _, inp := range inputs {
		have[inp.Name] = true
	}
	required := []string{"input_ids", "attention_mask", "token_type_ids"}
	for _, name := range required {
		if !have[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	return required, nil
}

// infer runs one inference call over flat [batchSize * seqLen] inputs and
// returns the flat [batchSize * seqLen * embedDim] hidden states.
func (s *onnxSession) infer(inputIDs, attentionMask, tokenTypeIDs []int64, batchSize, seqLen int64) ([]float32, error) {
	shape := ort.NewShape(batchSize, seqLen)

	var ins []ort.Value
	defer func() {
		for _, v := range ins {
			v.Destroy()
		}
	}()
	for i, data := range [][]int64{inputIDs, attentionMask, tokenTypeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("onnx: %s tensor: %w", s.inputNames[i], err)
		}
		ins = append(ins, t)
	}

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(batchSize, seqLen, s.embedDim))
	if err != nil {
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run(ins, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}

	// Copy data out before the tensor is destroyed.
	src := out.GetData()
	result := make([]float32, len(src))
	copy(result, src)
	return result, nil
}

func (s *onnxSession) close() error {
	return s.session.Destroy()
}
