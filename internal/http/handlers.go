package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/embeddings"
)

// bindEmbedRequest decodes and validates an embedding request body.
// Type mismatches (e.g. a number in texts) and malformed JSON fail
// with 422; a missing or empty texts list is not an error.
func bindEmbedRequest(c echo.Context, defaultModel string) (*EmbedRequest, error) {
	var req EmbedRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &typeErr):
			field := typeErr.Field
			if field == "" {
				field = "body"
			}
			return nil, echo.NewHTTPError(http.StatusUnprocessableEntity,
				fmt.Sprintf("field %q: expected %s, got %s", field, typeErr.Type, typeErr.Value))
		case errors.Is(err, io.EOF):
			return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, "request body is required")
		default:
			return nil, echo.NewHTTPError(http.StatusUnprocessableEntity, "invalid request body")
		}
	}

	if req.Model == "" {
		req.Model = defaultModel
	}
	return &req, nil
}

// handleEmbed generates dense embeddings: one fixed-length vector per
// input text, in input order.
func (s *Server) handleEmbed(c echo.Context) error {
	req, err := bindEmbedRequest(c, s.config.Defaults.Dense)
	if err != nil {
		return err
	}

	lease, err := s.registries.Dense.Acquire(c.Request().Context(), req.Model)
	if err != nil {
		return s.modelError(c, "dense", req.Model, err)
	}
	defer lease.Release()

	vectors, err := lease.Handle().Embed(c.Request().Context(), req.Texts)
	if err != nil {
		return s.inferenceError(c, "dense", req.Model, err)
	}
	if vectors == nil {
		vectors = [][]float32{}
	}

	return c.JSON(http.StatusOK, DenseEmbedResponse{Embeddings: vectors})
}

// handleSparseEmbed generates sparse embeddings: one index-to-weight
// mapping per input text, in input order.
func (s *Server) handleSparseEmbed(c echo.Context) error {
	req, err := bindEmbedRequest(c, s.config.Defaults.Sparse)
	if err != nil {
		return err
	}

	lease, err := s.registries.Sparse.Acquire(c.Request().Context(), req.Model)
	if err != nil {
		return s.modelError(c, "sparse", req.Model, err)
	}
	defer lease.Release()

	vectors, err := lease.Handle().Embed(c.Request().Context(), req.Texts)
	if err != nil {
		return s.inferenceError(c, "sparse", req.Model, err)
	}
	if vectors == nil {
		vectors = []embeddings.SparseVector{}
	}

	return c.JSON(http.StatusOK, SparseEmbedResponse{Embeddings: vectors})
}

// handleLateInteractionEmbed generates late-interaction embeddings:
// one vector per token per input text, in input order.
func (s *Server) handleLateInteractionEmbed(c echo.Context) error {
	req, err := bindEmbedRequest(c, s.config.Defaults.LateInteraction)
	if err != nil {
		return err
	}

	lease, err := s.registries.LateInteraction.Acquire(c.Request().Context(), req.Model)
	if err != nil {
		return s.modelError(c, "late-interaction", req.Model, err)
	}
	defer lease.Release()

	vectors, err := lease.Handle().Embed(c.Request().Context(), req.Texts)
	if err != nil {
		return s.inferenceError(c, "late-interaction", req.Model, err)
	}
	if vectors == nil {
		vectors = [][][]float32{}
	}

	return c.JSON(http.StatusOK, LateInteractionEmbedResponse{Embeddings: vectors})
}

// modelError maps a registry failure to a server-fault response. An
// unrecognized model name surfaces here rather than at validation, so
// it is a 5xx per the API contract.
func (s *Server) modelError(c echo.Context, category, model string, err error) error {
	s.logger.Error("model load failed",
		zap.String("category", category),
		zap.String("model", model),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError,
		fmt.Sprintf("loading model %q: %v", model, err))
}

// inferenceError maps an embedding failure to a server-fault response.
// Batches have no partial-failure semantics: any failure fails the
// whole request.
func (s *Server) inferenceError(c echo.Context, category, model string, err error) error {
	s.logger.Error("inference failed",
		zap.String("category", category),
		zap.String("model", model),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError,
		fmt.Sprintf("embedding with model %q: %v", model, err))
}
