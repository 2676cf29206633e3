package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/embedd/internal/config"
)

func TestBuildRegistries(t *testing.T) {
	cfg := config.NewDefaultConfig()

	registries, err := buildRegistries(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, registries.Dense)
	require.NotNil(t, registries.Sparse)
	require.NotNil(t, registries.LateInteraction)

	// Wiring only; no model is constructed until first acquire.
	assert.Zero(t, registries.Dense.Len())
	assert.Zero(t, registries.Sparse.Len())
	assert.Zero(t, registries.LateInteraction.Len())

	closeRegistries(registries, zap.NewNop())
}

func TestBuildRegistriesInvalidCapacity(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Models.DenseCapacity = 0

	_, err := buildRegistries(cfg, zap.NewNop())
	assert.Error(t, err)
}
