package embeddings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const defaultHubBaseURL = "https://huggingface.co"

// modelFileCandidates are the repository paths tried, in order, for
// the ONNX weights. Exporters publish under either layout.
var modelFileCandidates = []string{"onnx/model.onnx", "model.onnx"}

const tokenizerFile = "tokenizer.json"

// Hub resolves model files on disk, fetching them from the
// HuggingFace hub when missing.
type Hub struct {
	baseURL string
	dir     string
	client  *http.Client
	logger  *zap.Logger
}

// NewHub creates a hub rooted at dir. A nil logger disables logging.
func NewHub(dir string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		baseURL: defaultHubBaseURL,
		dir:     dir,
		client:  http.DefaultClient,
		logger:  logger,
	}
}

// validateModelName rejects names that would escape the models
// directory or build a malformed hub URL.
func validateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("model name is empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "..") || strings.Contains(name, "\\") {
		return fmt.Errorf("invalid model name %q", name)
	}
	return nil
}

// modelDir returns the local directory for a model name, flattening
// the org/name separator for filesystem safety.
func (h *Hub) modelDir(name string) string {
	return filepath.Join(h.dir, strings.ReplaceAll(name, "/", "--"))
}

// Ensure returns local paths to the model's ONNX weights and tokenizer
// file, downloading whichever is missing.
func (h *Hub) Ensure(ctx context.Context, name string) (modelPath, tokenizerPath string, err error) {
	if err := validateModelName(name); err != nil {
		return "", "", err
	}

	dir := h.modelDir(name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("creating model directory: %w", err)
	}

	modelPath = filepath.Join(dir, "model.onnx")
	if _, err := os.Stat(modelPath); err != nil {
		if err := h.fetchFirst(ctx, name, modelFileCandidates, modelPath); err != nil {
			return "", "", err
		}
	}

	tokenizerPath = filepath.Join(dir, tokenizerFile)
	if _, err := os.Stat(tokenizerPath); err != nil {
		if err := h.fetch(ctx, name, tokenizerFile, tokenizerPath); err != nil {
			return "", "", err
		}
	}

	return modelPath, tokenizerPath, nil
}

// fetchFirst tries each remote path in order until one succeeds.
func (h *Hub) fetchFirst(ctx context.Context, name string, remotePaths []string, dest string) error {
	var lastErr error
	for _, remote := range remotePaths {
		if err := h.fetch(ctx, name, remote, dest); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// fetch downloads one repository file to dest, writing through a
// temporary file so a partial download never masquerades as a model.
func (h *Hub) fetch(ctx context.Context, name, remotePath, dest string) error {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", h.baseURL, name, remotePath)

	h.logger.Info("downloading model file",
		zap.String("model", name),
		zap.String("file", remotePath))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s for %q: %w", remotePath, name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s for %q: status %d", remotePath, name, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dest, err)
	}

	return os.Rename(tmp.Name(), dest)
}
