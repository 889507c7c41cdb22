// Copyright (C) 2025 OriginSeed Labs (dev@originseedlabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package narrative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------
// Enhancer Configuration
// -----------------------------------------------------------------------------

// EnhancerConfig tunes the optional external-generation path.
type EnhancerConfig struct {
	// Timeout bounds one external call. The call must never block a
	// request indefinitely. Default: 8s.
	Timeout time.Duration

	// RatePerSecond throttles calls to the external backend.
	// Default: 2.
	RatePerSecond float64

	// Burst is the limiter burst size. Default: 4.
	Burst int

	// Logger for enhancement outcomes. Default: slog.Default().
	Logger *slog.Logger
}

func (c *EnhancerConfig) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 8 * time.Second
	}
	if c.RatePerSecond == 0 {
		c.RatePerSecond = 2
	}
	if c.Burst == 0 {
		c.Burst = 4
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// -----------------------------------------------------------------------------
// Enhancer
// -----------------------------------------------------------------------------

// Enhancer attempts external narrative generation before the rule-based
// path. Any failure (rate limit, timeout, transport error, empty output)
// is recoverable: the caller falls back with no difference in shape.
// Successful results are cached by (subject, layer, iteration) so repeated
// reads within a run are idempotent and don't repay the call cost.
//
// Thread Safety: safe for concurrent use.
type Enhancer struct {
	gen     TextGenerator
	config  EnhancerConfig
	logger  *slog.Logger
	limiter *rate.Limiter
	flight  singleflight.Group

	mu    sync.RWMutex
	cache map[string]string
}

// NewEnhancer wraps a generator. A nil generator yields a nil Enhancer,
// which the engine treats as "enhancement disabled".
func NewEnhancer(gen TextGenerator, config EnhancerConfig) *Enhancer {
	if gen == nil {
		return nil
	}
	config.applyDefaults()
	return &Enhancer{
		gen:     gen,
		config:  config,
		logger:  config.Logger.With(slog.String("component", "narrative_enhancer")),
		limiter: rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		cache:   make(map[string]string),
	}
}

// Enhance attempts one external generation. The boolean result is false on
// any failure; the engine then composes the rule-based narrative instead.
// Returned text has NOT been sanitized; the engine's unconditional
// sanitization pass handles that.
func (e *Enhancer) Enhance(ctx context.Context, subjectID string, layerID, iteration int, prompt string) (string, bool) {
	key := fmt.Sprintf("%s|%d|%d", subjectID, layerID, iteration)

	e.mu.RLock()
	cached, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return cached, true
	}

	result, err, _ := e.flight.Do(key, func() (any, error) {
		if !e.limiter.Allow() {
			return nil, fmt.Errorf("enhancement rate limit reached")
		}

		callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()

		text, err := e.gen.Generate(callCtx, prompt, e.params())
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("external generator returned empty text")
		}
		return text, nil
	})
	if err != nil {
		e.logger.Warn("narrative enhancement unavailable, using rule-based synthesis",
			slog.String("subject_id", subjectID),
			slog.Int("layer_id", layerID),
			slog.String("error", err.Error()))
		return "", false
	}

	text := result.(string)
	e.mu.Lock()
	e.cache[key] = text
	e.mu.Unlock()
	return text, true
}

func (e *Enhancer) params() GenerationParams {
	temp := float32(0.8)
	maxTokens := 400
	return GenerationParams{Temperature: &temp, MaxTokens: &maxTokens}
}
