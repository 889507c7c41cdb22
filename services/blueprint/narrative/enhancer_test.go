// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package narrative

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls atomic.Int64
	text  string
	err   error
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	g.calls.Add(1)
	return g.text, g.err
}

func TestNewEnhancer_NilGenerator(t *testing.T) {
	assert.Nil(t, NewEnhancer(nil, EnhancerConfig{}))
}

func TestEnhancer_FailureFallsBack(t *testing.T) {
	gen := &countingGenerator{err: errors.New("backend down")}
	e := NewEnhancer(gen, EnhancerConfig{})

	text, ok := e.Enhance(context.Background(), "s", 1, 0, "prompt")
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestEnhancer_EmptyOutputFallsBack(t *testing.T) {
	gen := &countingGenerator{text: "   \n  "}
	e := NewEnhancer(gen, EnhancerConfig{})

	_, ok := e.Enhance(context.Background(), "s", 1, 0, "prompt")
	assert.False(t, ok)
}

func TestEnhancer_CachesPerSubjectLayerIteration(t *testing.T) {
	gen := &countingGenerator{text: "a warm reflection"}
	e := NewEnhancer(gen, EnhancerConfig{})

	first, ok := e.Enhance(context.Background(), "s", 1, 0, "prompt")
	require.True(t, ok)
	second, ok := e.Enhance(context.Background(), "s", 1, 0, "prompt")
	require.True(t, ok)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), gen.calls.Load())

	// A different iteration is a distinct cache entry.
	_, ok = e.Enhance(context.Background(), "s", 1, 1, "prompt")
	require.True(t, ok)
	assert.Equal(t, int64(2), gen.calls.Load())
}

func TestEnhancer_RateLimitFallsBack(t *testing.T) {
	gen := &countingGenerator{text: "ok"}
	e := NewEnhancer(gen, EnhancerConfig{RatePerSecond: 0.001, Burst: 1})

	_, ok := e.Enhance(context.Background(), "s", 1, 0, "prompt")
	require.True(t, ok)

	_, ok = e.Enhance(context.Background(), "s", 2, 0, "prompt")
	assert.False(t, ok)
}
