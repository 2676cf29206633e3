package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/embeddings"
	"github.com/fyrsmithlabs/embedd/internal/registry"
)

// fakeDense returns deterministic fixed-length vectors.
type fakeDense struct {
	dim      int
	embedErr error
}

func (f *fakeDense) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		for j := range v {
			v[j] = float32(i)
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeDense) Dimension() int { return f.dim }
func (f *fakeDense) Close() error   { return nil }

type fakeSparse struct{}

func (f *fakeSparse) Embed(_ context.Context, texts []string) ([]embeddings.SparseVector, error) {
	out := make([]embeddings.SparseVector, len(texts))
	for i := range texts {
		out[i] = embeddings.SparseVector{
			Indices: []int32{3, 17},
			Values:  []float32{0.52, 0.11},
		}
	}
	return out, nil
}

func (f *fakeSparse) Close() error { return nil }

type fakeLate struct{ dim int }

func (f *fakeLate) Embed(_ context.Context, texts []string) ([][][]float32, error) {
	out := make([][][]float32, len(texts))
	for i := range texts {
		out[i] = [][]float32{
			make([]float32, f.dim),
			make([]float32, f.dim),
		}
	}
	return out, nil
}

func (f *fakeLate) Close() error { return nil }

// testEnv tracks what the fake builders were asked to construct.
type testEnv struct {
	server      *Server
	denseBuilds atomic.Int64
	lastDense   atomic.Value
	lastSparse  atomic.Value
	lastLate    atomic.Value
	denseErr    error
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	dense, err := registry.New[embeddings.DenseModel]("dense", 2,
		func(_ context.Context, name string) (embeddings.DenseModel, error) {
			if name == "bad/model" {
				return nil, errors.New("weights unavailable")
			}
			env.denseBuilds.Add(1)
			env.lastDense.Store(name)
			return &fakeDense{dim: 4, embedErr: env.denseErr}, nil
		}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dense.Close() })

	sparse, err := registry.New[embeddings.SparseModel]("sparse", 1,
		func(_ context.Context, name string) (embeddings.SparseModel, error) {
			env.lastSparse.Store(name)
			return &fakeSparse{}, nil
		}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sparse.Close() })

	late, err := registry.New[embeddings.LateInteractionModel]("late-interaction", 1,
		func(_ context.Context, name string) (embeddings.LateInteractionModel, error) {
			env.lastLate.Store(name)
			return &fakeLate{dim: 3}, nil
		}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = late.Close() })

	server, err := NewServer(&Registries{
		Dense:           dense,
		Sparse:          sparse,
		LateInteraction: late,
	}, zap.NewNop(), nil)
	require.NoError(t, err)

	env.server = server
	return env
}

func postJSON(t *testing.T, server *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("returns error when registries are missing", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		assert.Error(t, err)

		_, err = NewServer(&Registries{}, zap.NewNop(), nil)
		assert.Error(t, err)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		env := setupTestServer(t)
		_, err := NewServer(env.server.registries, nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		env := setupTestServer(t)
		assert.Equal(t, 8000, env.server.config.Port)
		assert.Equal(t, embeddings.DefaultDenseModel, env.server.config.Defaults.Dense)
	})
}

func TestHandleRoot(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp RootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Message)
}

func TestHandleModels(t *testing.T) {
	env := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/models", nil)
	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Dense)
	assert.NotEmpty(t, resp.Sparse)
	assert.NotEmpty(t, resp.Rerank)
}

func TestHandleEmbed(t *testing.T) {
	t.Run("returns one embedding per text in order", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": ["hello", "world"]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp DenseEmbedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Embeddings, 2)
		assert.Len(t, resp.Embeddings[0], 4)
		assert.Len(t, resp.Embeddings[1], 4)
		// Input order: the fake encodes the text's position.
		assert.Equal(t, float32(0), resp.Embeddings[0][0])
		assert.Equal(t, float32(1), resp.Embeddings[1][0])
	})

	t.Run("omitted model uses the dense default", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": ["a"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, embeddings.DefaultDenseModel, env.lastDense.Load())
	})

	t.Run("explicit model is honored", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": ["a"], "model": "BAAI/bge-base-en-v1.5"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "BAAI/bge-base-en-v1.5", env.lastDense.Load())
	})

	t.Run("repeated requests reuse the cached model", func(t *testing.T) {
		env := setupTestServer(t)

		for i := 0; i < 3; i++ {
			rec := postJSON(t, env.server, "/embed", `{"texts": ["a"]}`)
			require.Equal(t, http.StatusOK, rec.Code)
		}
		assert.Equal(t, int64(1), env.denseBuilds.Load())
	})

	t.Run("empty texts yields empty embeddings", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": []}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"embeddings": []}`, rec.Body.String())
	})

	t.Run("non-string texts entry fails with 422", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": ["a", 5]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), "texts")
	})

	t.Run("missing body fails with 422", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed json fails with 422", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": [`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("model load failure is a server error", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/embed", `{"texts": ["a"], "model": "bad/model"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "bad/model")
	})

	t.Run("inference failure is a server error", func(t *testing.T) {
		env := setupTestServer(t)
		env.denseErr = errors.New("boom")

		rec := postJSON(t, env.server, "/embed", `{"texts": ["a"]}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHandleSparseEmbed(t *testing.T) {
	t.Run("serializes index-to-weight objects", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/sparse-embed", `{"texts": ["a"]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"embeddings": [{"3": 0.52, "17": 0.11}]}`, rec.Body.String())
	})

	t.Run("omitted model uses the sparse default", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/sparse-embed", `{"texts": ["a"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, embeddings.DefaultSparseModel, env.lastSparse.Load())
	})

	t.Run("non-string texts entry fails with 422", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/sparse-embed", `{"texts": [1]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestHandleLateInteractionEmbed(t *testing.T) {
	t.Run("returns per-token vectors per text", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/late-interaction-embed", `{"texts": ["a", "b"]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp LateInteractionEmbedResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Embeddings, 2)
		require.Len(t, resp.Embeddings[0], 2, "one vector per token")
		assert.Len(t, resp.Embeddings[0][0], 3)
	})

	t.Run("omitted model uses the late-interaction default", func(t *testing.T) {
		env := setupTestServer(t)

		rec := postJSON(t, env.server, "/late-interaction-embed", `{"texts": ["a"]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, embeddings.DefaultLateInteractionModel, env.lastLate.Load())
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	// Generate at least one labeled sample so the families render.
	warm := httptest.NewRequest(http.MethodGet, "/", nil)
	env.server.echo.ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.server.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "embedd_http_requests_total")
}
