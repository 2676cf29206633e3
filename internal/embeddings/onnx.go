//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// initONNXEnvironment initializes the shared ONNX runtime environment
// exactly once per process. fastembed-go shares the same environment.
func initONNXEnvironment(libPath string) error {
	ortInitOnce.Do(func() {
		if ort.IsInitialized() {
			return
		}
		ort.SetSharedLibraryPath(libPath)
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// TransformerConfig holds configuration for the raw ONNX transformer
// backends (sparse and late-interaction).
type TransformerConfig struct {
	// Model is the model name, e.g. prithivida/Splade_PP_en_v1.
	Model string

	// ModelsDir is the local directory holding per-model ONNX weights
	// and tokenizer files. Missing files are fetched from the hub.
	ModelsDir string

	// MaxLength is the maximum input sequence length. Defaults to 512.
	MaxLength int
}

// transformerSession is a tokenizer plus ONNX session for one model.
// Runs are serialized; the session owns its tensors per call.
type transformerSession struct {
	name      string
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	inputs    []string
	maxLength int
	mu        sync.Mutex
}

// newTransformerSession loads the model and tokenizer for cfg.Model,
// fetching files from the hub when not present locally.
func newTransformerSession(ctx context.Context, cfg TransformerConfig) (*transformerSession, error) {
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	libPath, err := EnsureONNXRuntime(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	if err := initONNXEnvironment(libPath); err != nil {
		return nil, fmt.Errorf("%w: initializing onnx runtime: %v", ErrModelLoad, err)
	}

	hub := NewHub(cfg.ModelsDir, nil)
	modelPath, tokenizerPath, err := hub.Ensure(ctx, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching %q: %v", ErrModelLoad, cfg.Model, err)
	}

	tokenizerData, err := os.ReadFile(tokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tokenizer for %q: %v", ErrModelLoad, cfg.Model, err)
	}
	tk, err := tokenizers.FromBytesWithTruncation(tokenizerData, uint32(maxLength), tokenizers.TruncationDirectionRight)
	if err != nil {
		return nil, fmt.Errorf("%w: loading tokenizer for %q: %v", ErrModelLoad, cfg.Model, err)
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("%w: inspecting %q: %v", ErrModelLoad, cfg.Model, err)
	}
	if len(outputInfo) == 0 {
		tk.Close()
		return nil, fmt.Errorf("%w: model %q has no outputs", ErrModelLoad, cfg.Model)
	}

	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputNames[i] = info.Name
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		inputNames, []string{outputInfo[0].Name}, nil)
	if err != nil {
		tk.Close()
		return nil, fmt.Errorf("%w: creating session for %q: %v", ErrModelLoad, cfg.Model, err)
	}

	return &transformerSession{
		name:      cfg.Model,
		session:   session,
		tokenizer: tk,
		inputs:    inputNames,
		maxLength: maxLength,
	}, nil
}

// run tokenizes text, executes the session, and returns the raw output
// matrix as [seqLen][lastDim] row-major data plus the attention mask.
func (s *transformerSession) run(text string) (data []float32, mask []int64, seqLen, lastDim int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	enc := s.tokenizer.EncodeWithOptions(text, true,
		tokenizers.WithReturnAttentionMask(),
		tokenizers.WithReturnTypeIDs(),
	)
	seqLen = len(enc.IDs)
	if seqLen == 0 {
		return nil, nil, 0, 0, fmt.Errorf("%w: %q produced no tokens", ErrInference, s.name)
	}

	ids := make([]int64, seqLen)
	mask = make([]int64, seqLen)
	typeIDs := make([]int64, seqLen)
	for i, id := range enc.IDs {
		ids[i] = int64(id)
	}
	for i, m := range enc.AttentionMask {
		mask[i] = int64(m)
	}
	for i, t := range enc.TypeIDs {
		typeIDs[i] = int64(t)
	}

	shape := ort.NewShape(1, int64(seqLen))
	inputTensors := make([]ort.Value, 0, len(s.inputs))
	defer func() {
		for _, t := range inputTensors {
			t.Destroy()
		}
	}()

	for _, name := range s.inputs {
		var input []int64
		switch name {
		case "input_ids":
			input = ids
		case "attention_mask":
			input = mask
		case "token_type_ids":
			input = typeIDs
		default:
			return nil, nil, 0, 0, fmt.Errorf("%w: %q has unsupported input %q", ErrInference, s.name, name)
		}
		tensor, err := ort.NewTensor(shape, input)
		if err != nil {
			return nil, nil, 0, 0, fmt.Errorf("%w: creating %s tensor: %v", ErrInference, name, err)
		}
		inputTensors = append(inputTensors, tensor)
	}

	outputs := []ort.Value{nil}
	if err := s.session.Run(inputTensors, outputs); err != nil {
		return nil, nil, 0, 0, fmt.Errorf("%w: %q: %v", ErrInference, s.name, err)
	}
	out := outputs[0].(*ort.Tensor[float32])
	defer out.Destroy()

	outShape := out.GetShape()
	if len(outShape) != 3 || int(outShape[1]) != seqLen {
		return nil, nil, 0, 0, fmt.Errorf("%w: %q returned unexpected shape %v", ErrInference, s.name, outShape)
	}
	lastDim = int(outShape[2])

	data = make([]float32, seqLen*lastDim)
	copy(data, out.GetData())
	return data, mask, seqLen, lastDim, nil
}

// close releases the session and tokenizer.
func (s *transformerSession) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.session != nil {
		err = s.session.Destroy()
		s.session = nil
	}
	if s.tokenizer != nil {
		s.tokenizer.Close()
		s.tokenizer = nil
	}
	return err
}

// spladeModel produces sparse vocabulary vectors from a masked-LM
// model using SPLADE max pooling over token logits.
type spladeModel struct {
	sess *transformerSession
}

// NewSparseModel constructs a SPLADE sparse embedding model.
func NewSparseModel(ctx context.Context, cfg TransformerConfig) (SparseModel, error) {
	if !IsSparseModel(cfg.Model) {
		return nil, fmt.Errorf("%w: unsupported sparse model %q", ErrModelLoad, cfg.Model)
	}
	sess, err := newTransformerSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &spladeModel{sess: sess}, nil
}

// Embed returns one sparse vector per text, in input order.
func (m *spladeModel) Embed(ctx context.Context, texts []string) ([]SparseVector, error) {
	vectors := make([]SparseVector, 0, len(texts))
	for _, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		logits, mask, seqLen, vocabSize, err := m.sess.run(text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, spladePool(logits, mask, seqLen, vocabSize))
	}
	return vectors, nil
}

// Close releases the model's runtime resources.
func (m *spladeModel) Close() error {
	return m.sess.close()
}

// colbertModel produces one normalized vector per token.
type colbertModel struct {
	sess *transformerSession
}

// NewLateInteractionModel constructs a ColBERT-style late-interaction
// embedding model.
func NewLateInteractionModel(ctx context.Context, cfg TransformerConfig) (LateInteractionModel, error) {
	if !IsLateInteractionModel(cfg.Model) {
		return nil, fmt.Errorf("%w: unsupported late-interaction model %q", ErrModelLoad, cfg.Model)
	}
	sess, err := newTransformerSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &colbertModel{sess: sess}, nil
}

// Embed returns one per-token vector sequence per text, in input order.
func (m *colbertModel) Embed(ctx context.Context, texts []string) ([][][]float32, error) {
	out := make([][][]float32, 0, len(texts))
	for _, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		data, mask, seqLen, dim, err := m.sess.run(text)
		if err != nil {
			return nil, err
		}
		out = append(out, tokenVectors(data, mask, seqLen, dim))
	}
	return out, nil
}

// Close releases the model's runtime resources.
func (m *colbertModel) Close() error {
	return m.sess.close()
}
